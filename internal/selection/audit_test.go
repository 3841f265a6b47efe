package selection

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRecorder_AssignsIDAndNormalizes(t *testing.T) {
	sink := &memorySink{}
	r := NewAuditRecorder(sink, zerolog.Nop())

	rec := &AuditRecord{SelectedApproverID: "A", Method: MethodWorkloadBalanced}
	assert.Nil(t, r.Record(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.NotNil(t, rec.RequestedApprovers)
	require.Equal(t, 1, sink.count())

	kept := &AuditRecord{ID: "fixed-id"}
	r.Record(context.Background(), kept)
	assert.Equal(t, "fixed-id", kept.ID)
}

func TestAuditRecorder_SwallowsAndLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	sinkErr := errors.New("disk full")
	r := NewAuditRecorder(AuditSinkFunc(func(context.Context, *AuditRecord) error {
		return sinkErr
	}), zerolog.New(&buf))

	w := r.Record(context.Background(), &AuditRecord{SelectedApproverID: "A", Level: 2})
	require.NotNil(t, w)
	assert.NotEmpty(t, w.RecordID)
	assert.ErrorIs(t, w, sinkErr)
	assert.Contains(t, w.Error(), "disk full")
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "Failed to write approver selection log entry")
}

func TestAuditRecorder_NilSink(t *testing.T) {
	r := NewAuditRecorder(nil, zerolog.Nop())
	assert.Nil(t, r.Record(context.Background(), &AuditRecord{}))
}

func TestAuditRecorder_RecoversFromPanickingSink(t *testing.T) {
	var buf bytes.Buffer
	r := NewAuditRecorder(AuditSinkFunc(func(context.Context, *AuditRecord) error {
		var rows map[string]int
		rows["x"] = 1
		return nil
	}), zerolog.New(&buf))

	var w *AuditWarning
	require.NotPanics(t, func() {
		w = r.Record(context.Background(), &AuditRecord{SelectedApproverID: "A", Level: 1})
	})
	require.NotNil(t, w)
	assert.NotEmpty(t, w.RecordID)
	assert.Contains(t, w.Error(), "audit sink panic")
	assert.Contains(t, buf.String(), "Failed to write approver selection log entry")
}

func TestSelect_PanickingSinkKeepsDecision(t *testing.T) {
	sink := AuditSinkFunc(func(context.Context, *AuditRecord) error {
		panic("pool is nil")
	})
	pool := []Candidate{{ID: "A", Workload: 3}, {ID: "B", Workload: 1}}

	var res Result
	require.NotPanics(t, func() {
		res = NewEngine(DefaultRules(), sink, zerolog.Nop()).
			Select(context.Background(), Request{Pool: pool, Level: 1}, nil)
	})
	require.True(t, res.OK())
	assert.Equal(t, "B", res.Selected.ID)
	require.NotNil(t, res.AuditWarning)
	assert.Contains(t, res.AuditWarning.Error(), "pool is nil")
}
