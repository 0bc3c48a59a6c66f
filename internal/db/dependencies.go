package db

import "context"

// Client is the persistence collaborator contract: policy store, violation
// ledger and the append-only audit writers.
type Client interface {
	Close() error

	GetPolicy(ctx context.Context, chatID int64) (*ChatPolicy, error)
	// UpdatePolicyField persists a single field of policy, identified by one
	// of the Field constants. Writes to different fields of the same chat
	// never overwrite each other.
	UpdatePolicyField(ctx context.Context, policy *ChatPolicy, field string) error

	// IncrementAndGet atomically increments the violation count for
	// (chat, user), initializing at zero when absent, and returns the new
	// value. Concurrent calls for the same key never observe the same value.
	IncrementAndGet(ctx context.Context, chatID, userID int64) (int, error)
	// ResetViolations sets the count back to zero; idempotent.
	ResetViolations(ctx context.Context, chatID, userID int64) error

	AddReport(ctx context.Context, report *Report) error
	AddEnforcement(ctx context.Context, record *EnforcementRecord) error
	AddScoreLog(ctx context.Context, entry *ScoreLog) error

	GetChatStats(ctx context.Context, chatID int64) (*ChatStats, error)
	ListEnforcements(ctx context.Context, chatID int64, limit int) ([]*EnforcementRecord, error)
}
