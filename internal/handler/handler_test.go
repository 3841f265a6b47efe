package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/pesio-ai/be-ap-approver-selection/internal/api"
	"github.com/pesio-ai/be-ap-approver-selection/internal/client"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/errors"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/logger"
	"github.com/pesio-ai/be-ap-approver-selection/internal/repository"
	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
)

type stubService struct {
	result       selection.Result
	err          error
	lastReq      api.SelectApproverRequest
	lastLevel    int
	lastLimit    int
	lastApprover string
	lastWindow   time.Duration
	removed      string
}

func (s *stubService) SelectApprover(_ context.Context, req api.SelectApproverRequest) (selection.Result, error) {
	s.lastReq = req
	return s.result, s.err
}

func (s *stubService) GetWorkloadStats(context.Context) ([]*repository.ApproverWorkloadStats, error) {
	return []*repository.ApproverWorkloadStats{{
		Approver:      repository.Approver{ID: "u1", Username: "alice", Role: "MANAGER"},
		PendingTasks:  2,
		TotalApproved: 3,
		TotalRejected: 1,
		ApprovalRate:  75,
	}}, nil
}

func (s *stubService) GetSelectionHistory(_ context.Context, level, limit int) ([]*selection.AuditRecord, error) {
	s.lastLevel, s.lastLimit = level, limit
	return []*selection.AuditRecord{{ID: "r1", Level: selection.Level(level), SelectedApproverID: "u1", Method: selection.MethodRequested}}, nil
}

func (s *stubService) GetApproverSelectionHistory(_ context.Context, approverID string, limit int) ([]*selection.AuditRecord, error) {
	s.lastApprover, s.lastLimit = approverID, limit
	return []*selection.AuditRecord{{ID: "r2", SelectedApproverID: approverID, Method: selection.MethodEscalated}}, nil
}

func (s *stubService) SummarizeSelections(_ context.Context, window time.Duration) (time.Time, map[selection.Method]int, error) {
	s.lastWindow = window
	return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), map[selection.Method]int{selection.MethodRequested: 4}, nil
}

func (s *stubService) ListApprovalLevels(context.Context) ([]*repository.ApprovalLevel, error) {
	return []*repository.ApprovalLevel{
		{ID: "l1", Level: 1, RoleName: "MANAGER"},
		{ID: "l3", Level: 3, RoleName: "ENTERPRISE_ADMIN"},
	}, nil
}

func (s *stubService) GetApprovalLevel(_ context.Context, level int) (*repository.ApprovalLevel, error) {
	if level != 3 {
		return nil, errors.NotFound("approval_level", strconv.Itoa(level))
	}
	return &repository.ApprovalLevel{ID: "l3", Level: 3, RoleName: "ENTERPRISE_ADMIN"}, nil
}

func (s *stubService) GetApproverConfig(_ context.Context, userID string, level int) (*repository.ApproverConfiguration, error) {
	return &repository.ApproverConfiguration{ID: "c1", UserID: userID, Level: level, IsAvailable: true, IsActive: true}, nil
}

func (s *stubService) ConfigureApprover(_ context.Context, req api.ApproverConfigRequest) (*repository.ApproverConfiguration, error) {
	if req.UserID == "" {
		return nil, errors.InvalidInput("user_id", "is required")
	}
	return &repository.ApproverConfiguration{UserID: req.UserID, Level: req.Level, IsActive: true}, nil
}

func (s *stubService) RemoveApproverConfig(_ context.Context, userID string, _ int) error {
	s.removed = userID
	return nil
}

func selected() selection.Result {
	return selection.Result{
		Outcome:  selection.OutcomeSelected,
		Selected: selection.Candidate{ID: "u2", DisplayName: "bob", Role: "MANAGER"},
		Method:   selection.MethodWorkloadBalanced,
		Workload: 1,
		Level:    1,
	}
}

func noCandidates() error {
	return &errors.Error{
		Code:    errors.ErrCodePrecondition,
		Message: selection.ErrNoCandidates.Error(),
		Cause:   selection.ErrNoCandidates,
	}
}

func newServer(svc SelectionService) http.Handler {
	mux := http.NewServeMux()
	NewHTTPHandler(svc, logger.Nop()).Register(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_SelectApprover(t *testing.T) {
	svc := &stubService{result: selected()}
	rec := do(t, newServer(svc), http.MethodPost, "/api/v1/approvers/select",
		`{"level":1,"amount":2500,"requested_approvers":["u9"],"task_id":"t1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.SelectApproverResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "u2", resp.ApproverID)
	assert.Equal(t, "WORKLOAD_BALANCED", resp.Method)
	assert.Equal(t, []string{"u9"}, svc.lastReq.RequestedApprovers)
	assert.Equal(t, int64(2500), svc.lastReq.Amount)
}

func TestHTTP_SelectApproverNoCandidates(t *testing.T) {
	rec := do(t, newServer(&stubService{err: noCandidates()}), http.MethodPost, "/api/v1/approvers/select", `{"level":5}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":"no eligible approver configured for this level"}`, rec.Body.String())
}

func TestHTTP_SelectApproverErrors(t *testing.T) {
	h := newServer(&stubService{err: stderrors.New("connection refused")})

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/v1/approvers/select", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/approvers/select", "{").Code)

	rec := do(t, h, http.MethodPost, "/api/v1/approvers/select", `{"level":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestHTTP_WorkloadStats(t *testing.T) {
	rec := do(t, newServer(&stubService{}), http.MethodGet, "/api/v1/approvers/workload", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.WorkloadStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Stats, 1)
	assert.Equal(t, 75.0, resp.Stats[0].ApprovalRate)
	assert.Equal(t, "alice", resp.Stats[0].Username)
}

func TestHTTP_SelectionHistory(t *testing.T) {
	svc := &stubService{}
	h := newServer(svc)

	rec := do(t, h, http.MethodGet, "/api/v1/approvers/selections?level=2&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, svc.lastLevel)
	assert.Equal(t, 5, svc.lastLimit)
	assert.Contains(t, rec.Body.String(), `"selection_method":"REQUESTED"`)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/approvers/selections", "").Code)
}

func TestHTTP_SelectionHistoryRejectsMalformedLimit(t *testing.T) {
	svc := &stubService{}
	rec := do(t, newServer(svc), http.MethodGet, "/api/v1/approvers/selections?level=2&limit=ten", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"limit must be an integer"}`, rec.Body.String())
	assert.Zero(t, svc.lastLevel)
}

func TestHTTP_SelectionHistoryByApprover(t *testing.T) {
	svc := &stubService{}
	rec := do(t, newServer(svc), http.MethodGet, "/api/v1/approvers/selections?approver_id=ea1&limit=3", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ea1", svc.lastApprover)
	assert.Equal(t, 3, svc.lastLimit)
	assert.Contains(t, rec.Body.String(), `"selected_approver_id":"ea1"`)
}

func TestHTTP_SelectionSummary(t *testing.T) {
	svc := &stubService{}
	h := newServer(svc)

	rec := do(t, h, http.MethodGet, "/api/v1/approvers/selections/summary?window=2h", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2*time.Hour, svc.lastWindow)

	var resp api.SelectionSummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, 4, resp.ByMethod["REQUESTED"])
	assert.Equal(t, 0, resp.ByMethod["ESCALATED"])

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/approvers/selections/summary?window=soon", "").Code)
}

func TestHTTP_ApprovalLevels(t *testing.T) {
	h := newServer(&stubService{})

	rec := do(t, h, http.MethodGet, "/api/v1/approvers/levels", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role_name":"MANAGER"`)

	rec = do(t, h, http.MethodGet, "/api/v1/approvers/levels?level=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"levels":[{"id":"l3","level":3,"role_name":"ENTERPRISE_ADMIN"}]}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/approvers/levels?level=9", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/approvers/levels?level=x", "").Code)
}

func TestHTTP_ApproverConfig(t *testing.T) {
	svc := &stubService{}
	h := newServer(svc)

	rec := do(t, h, http.MethodPut, "/api/v1/approvers/config", `{"user_id":"u1","level":1,"priority":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var saved map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, "u1", saved["user_id"])
	assert.Equal(t, true, saved["is_active"])
	assert.NotContains(t, saved, "UserID")

	rec = do(t, h, http.MethodGet, "/api/v1/approvers/config?user_id=u1&level=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_available":true`)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/approvers/config?user_id=u1", "").Code)

	rec = do(t, h, http.MethodPut, "/api/v1/approvers/config", `{"level":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid user_id")

	rec = do(t, h, http.MethodDelete, "/api/v1/approvers/config?user_id=u1&level=1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", svc.removed)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPost, "/api/v1/approvers/config", "").Code)
}

func TestHTTP_Health(t *testing.T) {
	rec := do(t, newServer(&stubService{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func startGRPC(t *testing.T, svc SelectionService) *client.SelectionGRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	api.RegisterApproverSelectionServer(srv, NewGRPCHandler(svc, zerolog.Nop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := client.NewSelectionGRPCClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGRPC_SelectApprover(t *testing.T) {
	svc := &stubService{result: selected()}
	c := startGRPC(t, svc)

	resp, err := c.SelectApprover(context.Background(), api.SelectApproverRequest{Level: 1, Amount: 100, TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "u2", resp.ApproverID)
	assert.Equal(t, 1, resp.Level)
	assert.Equal(t, "t1", svc.lastReq.TaskID)
}

func TestGRPC_SelectApproverFailedPrecondition(t *testing.T) {
	c := startGRPC(t, &stubService{err: noCandidates()})

	_, err := c.SelectApprover(context.Background(), api.SelectApproverRequest{Level: 4})
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Contains(t, err.Error(), "desc = no eligible approver configured for this level")
}

func TestGRPC_GetWorkloadStats(t *testing.T) {
	c := startGRPC(t, &stubService{})

	resp, err := c.GetWorkloadStats(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Stats, 1)
	assert.Equal(t, 3, resp.Stats[0].TotalApproved)
}
