package repository

import "time"

// ── Domain types for approver selection ──────────────────────────────────────

// ApproverConfiguration is the per-(user, level) selection policy row.
type ApproverConfiguration struct {
	ID            string
	UserID        string
	Level         int
	IsAvailable   bool
	AutoAssign    bool
	ApprovalLimit *int64 // nil = unbounded
	Priority      int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ApprovalLevel maps a hierarchy tier to the role whose holders approve at it.
type ApprovalLevel struct {
	ID        string
	Level     int
	RoleName  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Approver is a user eligible to approve, with their open-task count.
type Approver struct {
	ID           string
	Username     string
	Email        string
	Role         string
	PendingTasks int
}

// ApproverWorkloadStats summarises an approver's queue and decision history.
type ApproverWorkloadStats struct {
	Approver      Approver
	PendingTasks  int
	TotalApproved int
	TotalRejected int
	// ApprovalRate is approved / (approved + rejected) as a percentage
	// rounded to two decimals; 0 when there are no decisions.
	ApprovalRate float64
}

// ApproverRoles are the roles included in workload statistics.
var ApproverRoles = []string{"MANAGER", "ADMIN", "SUPER_ADMIN", "ENTERPRISE_ADMIN"}
