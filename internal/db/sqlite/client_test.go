package sqlite

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/iamwavecut/phishguard/internal/db"
	coreerrors "github.com/iamwavecut/phishguard/internal/errors"
)

func newTestClient(t *testing.T) *sqliteClient {
	t.Helper()
	client, err := NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTablesExistAfterMigrations(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	for _, table := range []string{"chats", "violations", "reports", "enforcements", "score_logs"} {
		var name string
		err := client.db.GetContext(ctx, &name,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		if err != nil {
			t.Fatalf("table %q not found after migrations: %v", table, err)
		}
	}
}

func TestGetPolicyCreatesDefaultsOnFirstReference(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	policy, err := client.GetPolicy(ctx, -100)
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	want := db.DefaultChatPolicy(-100)
	if *policy != *want {
		t.Fatalf("first reference policy = %+v, want defaults %+v", policy, want)
	}

	again, err := client.GetPolicy(ctx, -100)
	if err != nil {
		t.Fatalf("get policy again: %v", err)
	}
	if *again != *policy {
		t.Fatalf("second read differs: %+v vs %+v", again, policy)
	}
}

func TestUpdatePolicyFieldRoundTrip(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	policy, err := client.GetPolicy(ctx, -100)
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	policy.Threshold = 0.8
	policy.MaxWarnings = 5
	policy.Punishment = db.PunishmentMute
	policy.LoggingEnabled = false
	for _, field := range []string{db.FieldThreshold, db.FieldMaxWarnings, db.FieldPunishment, db.FieldLogging} {
		if err := client.UpdatePolicyField(ctx, policy, field); err != nil {
			t.Fatalf("update %s: %v", field, err)
		}
	}

	got, err := client.GetPolicy(ctx, -100)
	if err != nil {
		t.Fatalf("get policy after updates: %v", err)
	}
	if *got != *policy {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, policy)
	}
}

func TestUpdatePolicyFieldKeepsInterleavedWrites(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	// Two callers hold independent snapshots and each write a different field.
	first, err := client.GetPolicy(ctx, -100)
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	snapshot := *first
	second := &snapshot

	first.Threshold = 0.8
	if err := client.UpdatePolicyField(ctx, first, db.FieldThreshold); err != nil {
		t.Fatalf("update threshold: %v", err)
	}
	second.MaxWarnings = 5
	if err := client.UpdatePolicyField(ctx, second, db.FieldMaxWarnings); err != nil {
		t.Fatalf("update max warnings: %v", err)
	}

	got, err := client.GetPolicy(ctx, -100)
	if err != nil {
		t.Fatalf("get policy after updates: %v", err)
	}
	if got.Threshold != 0.8 || got.MaxWarnings != 5 {
		t.Fatalf("the stale snapshot clobbered a sibling field: %+v", got)
	}
}

func TestUpdatePolicyFieldRejectsUnknownColumns(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	policy, err := client.GetPolicy(ctx, -100)
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	err = client.UpdatePolicyField(ctx, policy, "chat_id; DROP TABLE chats")
	if !errors.Is(err, coreerrors.ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}
}

func TestIncrementAndGetIsLinearizable(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()
	const racers = 16

	results := make([]int, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			count, err := client.IncrementAndGet(ctx, -100, 7)
			if err != nil {
				t.Errorf("increment: %v", err)
				return
			}
			results[i] = count
		}(i)
	}
	wg.Wait()

	sort.Ints(results)
	for i, count := range results {
		if count != i+1 {
			t.Fatalf("observed counts %v, want a permutation of 1..%d", results, racers)
		}
	}
}

func TestResetViolationsRestartsTheCounter(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := client.IncrementAndGet(ctx, -100, 7); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if err := client.ResetViolations(ctx, -100, 7); err != nil {
		t.Fatalf("reset: %v", err)
	}

	count, err := client.IncrementAndGet(ctx, -100, 7)
	if err != nil {
		t.Fatalf("increment after reset: %v", err)
	}
	if count != 1 {
		t.Fatalf("count after reset = %d, want 1", count)
	}

	// Other users' counters survive the reset.
	other, err := client.IncrementAndGet(ctx, -100, 8)
	if err != nil {
		t.Fatalf("increment other user: %v", err)
	}
	if other != 1 {
		t.Fatalf("other user count = %d, want 1", other)
	}
}

func TestAuditTrailAndStats(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	prob := 0.97
	if err := client.AddScoreLog(ctx, &db.ScoreLog{
		ChatID: -100, MessageText: "spam", SpamProb: &prob, Threshold: 0.9, Removed: true,
	}); err != nil {
		t.Fatalf("add score log: %v", err)
	}
	if err := client.AddScoreLog(ctx, &db.ScoreLog{
		ChatID: -100, MessageText: "ham", SpamProb: nil, Threshold: 0.9, Removed: false,
	}); err != nil {
		t.Fatalf("add null-probability score log: %v", err)
	}
	if err := client.AddReport(ctx, &db.Report{ChatID: -100, MessageText: "missed spam"}); err != nil {
		t.Fatalf("add report: %v", err)
	}
	if err := client.AddEnforcement(ctx, &db.EnforcementRecord{
		ChatID: -100, UserID: 7, Punishment: db.PunishmentBan, Reason: "limit reached",
	}); err != nil {
		t.Fatalf("add enforcement: %v", err)
	}

	stats, err := client.GetChatStats(ctx, -100)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.Removed != 1 || stats.Reports != 1 || stats.Enforcements != 1 {
		t.Fatalf("stats = %+v, want 1/1/1", stats)
	}

	otherStats, err := client.GetChatStats(ctx, -200)
	if err != nil {
		t.Fatalf("get stats for empty chat: %v", err)
	}
	if otherStats.Removed != 0 || otherStats.Reports != 0 || otherStats.Enforcements != 0 {
		t.Fatalf("empty chat stats = %+v", otherStats)
	}

	records, err := client.ListEnforcements(ctx, -100, 10)
	if err != nil {
		t.Fatalf("list enforcements: %v", err)
	}
	if len(records) != 1 || records[0].Punishment != db.PunishmentBan || records[0].UserID != 7 {
		t.Fatalf("unexpected enforcement records: %+v", records)
	}
}
