package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// RebalanceStore persists the append-only rebalance audit trail.
type RebalanceStore interface {
	Create(ctx context.Context, rec RebalanceRecord) error
	GetByID(ctx context.Context, id string) (RebalanceRecord, error)
	ListByAccount(ctx context.Context, ownerHex string, opts ListOpts) ([]RebalanceRecord, error)
	ListRecent(ctx context.Context, limit int) ([]RebalanceRecord, error)
	ListBefore(ctx context.Context, cutoff time.Time) ([]RebalanceRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditEntry is a single audit log row. The owner/account columns are
// indexed so per-position event history can be filtered efficiently.
type AuditEntry struct {
	ID            int64
	Event         string
	AccountOwner  string
	AccountNumber string
	Detail        map[string]any
	CreatedAt     time.Time
}

// AuditStore persists an append-only log of guardian events.
type AuditStore interface {
	Log(ctx context.Context, event string, acct Account, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, cutoff time.Time) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
