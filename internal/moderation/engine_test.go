package moderation

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"

	"github.com/iamwavecut/phishguard/internal/db"
	coreerrors "github.com/iamwavecut/phishguard/internal/errors"
)

type storeStub struct {
	policy       *db.ChatPolicy
	policyErrs   int
	counts       map[int64]int
	countErrs    int
	scoreLogs    []*db.ScoreLog
	reports      []*db.Report
	enforcements []*db.EnforcementRecord
	fieldWrites  []string
	resets       int
}

func newStoreStub(policy *db.ChatPolicy) *storeStub {
	return &storeStub{policy: policy, counts: map[int64]int{}}
}

func (s *storeStub) GetPolicy(_ context.Context, chatID int64) (*db.ChatPolicy, error) {
	if s.policyErrs > 0 {
		s.policyErrs--
		return nil, fmt.Errorf("store down")
	}
	cp := *s.policy
	cp.ChatID = chatID
	return &cp, nil
}

func (s *storeStub) UpdatePolicyField(_ context.Context, policy *db.ChatPolicy, field string) error {
	s.fieldWrites = append(s.fieldWrites, field)
	cp := *policy
	s.policy = &cp
	return nil
}

func (s *storeStub) IncrementAndGet(_ context.Context, _, userID int64) (int, error) {
	if s.countErrs > 0 {
		s.countErrs--
		return 0, fmt.Errorf("store down")
	}
	s.counts[userID]++
	return s.counts[userID], nil
}

func (s *storeStub) ResetViolations(_ context.Context, _, userID int64) error {
	s.resets++
	s.counts[userID] = 0
	return nil
}

func (s *storeStub) AddScoreLog(_ context.Context, entry *db.ScoreLog) error {
	s.scoreLogs = append(s.scoreLogs, entry)
	return nil
}

func (s *storeStub) AddReport(_ context.Context, report *db.Report) error {
	s.reports = append(s.reports, report)
	return nil
}

func (s *storeStub) AddEnforcement(_ context.Context, record *db.EnforcementRecord) error {
	s.enforcements = append(s.enforcements, record)
	return nil
}

type scorerStub struct {
	score float64
	err   error
}

func (s *scorerStub) Score(context.Context, string) (float64, error) {
	return s.score, s.err
}

type transportStub struct {
	deleteErr   error
	restrictErr error
	banErr      error
	deletes     int
	restricts   int
	bans        int
}

func (t *transportStub) DeleteMessage(context.Context, int64, int) error {
	t.deletes++
	return t.deleteErr
}

func (t *transportStub) RestrictUser(context.Context, int64, int64) error {
	t.restricts++
	return t.restrictErr
}

func (t *transportStub) BanUser(context.Context, int64, int64) error {
	t.bans++
	return t.banErr
}

func newTestEngine(store *storeStub, scorer Scorer, transport *transportStub, reset ResetPolicy) *Engine {
	return NewEngine(store, scorer, NewDispatcher(transport, store), reset)
}

func testMessage() Message {
	return Message{ChatID: -100, UserID: 7, MessageID: 42, Text: "click here to claim your prize"}
}

func TestDecideAutomated_EscalatesAtWarningsLimit(t *testing.T) {
	t.Parallel()

	store := newStoreStub(&db.ChatPolicy{
		Threshold:      0.9,
		MaxWarnings:    2,
		Punishment:     db.PunishmentBan,
		LoggingEnabled: true,
	})
	scorer := &scorerStub{score: 0.95}
	transport := &transportStub{}
	engine := newTestEngine(store, scorer, transport, ResetOnAttempt)
	ctx := context.Background()

	first, err := engine.DecideAutomated(ctx, testMessage())
	if err != nil {
		t.Fatalf("first decision failed: %v", err)
	}
	if !first.Removed || !first.Deleted {
		t.Fatalf("first verdict should remove the message: %+v", first)
	}
	if first.Warnings != 1 || first.Escalated {
		t.Fatalf("first verdict should warn without escalation: %+v", first)
	}

	scorer.score = 0.91
	second, err := engine.DecideAutomated(ctx, testMessage())
	if err != nil {
		t.Fatalf("second decision failed: %v", err)
	}
	if second.Warnings != 2 || !second.Escalated || !second.Enforced {
		t.Fatalf("second verdict should escalate: %+v", second)
	}
	if second.Punishment != db.PunishmentBan {
		t.Fatalf("unexpected punishment: %q", second.Punishment)
	}
	if transport.bans != 1 {
		t.Fatalf("expected exactly one ban, got %d", transport.bans)
	}
	if len(store.enforcements) != 1 {
		t.Fatalf("expected exactly one enforcement record, got %d", len(store.enforcements))
	}
	if store.counts[7] != 0 {
		t.Fatalf("violation counter should be reset after escalation, got %d", store.counts[7])
	}
	if len(store.scoreLogs) != 2 {
		t.Fatalf("expected a score log per message, got %d", len(store.scoreLogs))
	}
}

func TestDecideAutomated_ThresholdBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		score       float64
		wantRemoved bool
	}{
		{"just below", 0.8999, false},
		{"exact threshold removes", 0.9, true},
		{"above", 0.91, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newStoreStub(db.DefaultChatPolicy(-100))
			transport := &transportStub{}
			engine := newTestEngine(store, &scorerStub{score: tt.score}, transport, ResetOnAttempt)

			verdict, err := engine.DecideAutomated(context.Background(), testMessage())
			if err != nil {
				t.Fatalf("decision failed: %v", err)
			}
			if verdict.Removed != tt.wantRemoved {
				t.Fatalf("score %v: removed = %v, want %v", tt.score, verdict.Removed, tt.wantRemoved)
			}
			wantWarnings := 0
			if tt.wantRemoved {
				wantWarnings = 1
			}
			if store.counts[7] != wantWarnings {
				t.Fatalf("score %v: counter = %d, want %d", tt.score, store.counts[7], wantWarnings)
			}
		})
	}
}

func TestDecideAutomated_ScoringUnavailableIsNoSignal(t *testing.T) {
	t.Parallel()

	store := newStoreStub(db.DefaultChatPolicy(-100))
	transport := &transportStub{}
	scorer := &scorerStub{err: errors.Wrap(coreerrors.ErrScoringUnavailable, "all models down")}
	engine := newTestEngine(store, scorer, transport, ResetOnAttempt)

	verdict, err := engine.DecideAutomated(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("outage must not fail the decision: %v", err)
	}
	if verdict.Scored || verdict.Removed {
		t.Fatalf("outage verdict must carry no removal: %+v", verdict)
	}
	if transport.deletes != 0 {
		t.Fatalf("no deletion on outage, got %d", transport.deletes)
	}
	if store.counts[7] != 0 {
		t.Fatalf("no violation increment on outage, got %d", store.counts[7])
	}
	if len(store.scoreLogs) != 1 || store.scoreLogs[0].SpamProb != nil {
		t.Fatalf("outage must log a null probability entry: %+v", store.scoreLogs)
	}
}

func TestDecideAutomated_LoggingDisabledSkipsScoreLog(t *testing.T) {
	t.Parallel()

	policy := db.DefaultChatPolicy(-100)
	policy.LoggingEnabled = false
	store := newStoreStub(policy)
	engine := newTestEngine(store, &scorerStub{score: 0.95}, &transportStub{}, ResetOnAttempt)

	if _, err := engine.DecideAutomated(context.Background(), testMessage()); err != nil {
		t.Fatalf("decision failed: %v", err)
	}
	if len(store.scoreLogs) != 0 {
		t.Fatalf("logging disabled, but %d score logs written", len(store.scoreLogs))
	}
}

func TestDecideAutomated_TransportFailureStillRecordsEnforcement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		reset      ResetPolicy
		wantResets int
	}{
		{"reset on attempt", ResetOnAttempt, 1},
		{"reset on success keeps counter", ResetOnSuccess, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newStoreStub(&db.ChatPolicy{
				Threshold:   0.9,
				MaxWarnings: 1,
				Punishment:  db.PunishmentBan,
			})
			transport := &transportStub{banErr: fmt.Errorf("not enough rights")}
			engine := newTestEngine(store, &scorerStub{score: 0.99}, transport, tt.reset)

			verdict, err := engine.DecideAutomated(context.Background(), testMessage())
			if err != nil {
				t.Fatalf("decision failed: %v", err)
			}
			if !verdict.Escalated || verdict.Enforced {
				t.Fatalf("verdict should escalate without enforcement: %+v", verdict)
			}
			if len(store.enforcements) != 1 {
				t.Fatalf("expected exactly one enforcement record, got %d", len(store.enforcements))
			}
			if store.resets != tt.wantResets {
				t.Fatalf("resets = %d, want %d", store.resets, tt.wantResets)
			}
		})
	}
}

func TestDecideAutomated_PersistenceRetriedOnce(t *testing.T) {
	t.Parallel()

	store := newStoreStub(db.DefaultChatPolicy(-100))
	store.countErrs = 1
	engine := newTestEngine(store, &scorerStub{score: 0.95}, &transportStub{}, ResetOnAttempt)

	verdict, err := engine.DecideAutomated(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("single transient failure must be retried: %v", err)
	}
	if verdict.Warnings != 1 {
		t.Fatalf("warnings = %d, want 1", verdict.Warnings)
	}

	store.countErrs = 2
	if _, err := engine.DecideAutomated(context.Background(), testMessage()); !errors.Is(err, coreerrors.ErrPersistenceFailure) {
		t.Fatalf("double failure must surface ErrPersistenceFailure, got %v", err)
	}
}

func TestDecideManualReport_HonorsAnonymity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		anonymous    bool
		wantReporter bool
	}{
		{"anonymous drops reporter", true, false},
		{"attributed keeps reporter", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			policy := db.DefaultChatPolicy(-100)
			policy.AnonymousReports = tt.anonymous
			store := newStoreStub(policy)
			transport := &transportStub{}
			engine := newTestEngine(store, &scorerStub{score: 0.5}, transport, ResetOnAttempt)

			receipt, err := engine.DecideManualReport(context.Background(), ReportRequest{
				ChatID:     -100,
				ReporterID: 9,
				MessageID:  42,
				Text:       "suspicious link",
			})
			if err != nil {
				t.Fatalf("report failed: %v", err)
			}
			if receipt.Anonymous != tt.anonymous {
				t.Fatalf("receipt anonymity = %v, want %v", receipt.Anonymous, tt.anonymous)
			}
			if len(store.reports) != 1 {
				t.Fatalf("expected one stored report, got %d", len(store.reports))
			}
			gotReporter := store.reports[0].ReporterID != nil
			if gotReporter != tt.wantReporter {
				t.Fatalf("stored reporter presence = %v, want %v", gotReporter, tt.wantReporter)
			}
			if !receipt.Deleted || transport.deletes != 1 {
				t.Fatalf("reported message should be deleted: %+v", receipt)
			}
			if store.counts[9] != 0 {
				t.Fatalf("manual reports must not touch the warning counter")
			}
		})
	}
}

func TestDecideManualReport_StoredEvenWhenScoringFails(t *testing.T) {
	t.Parallel()

	store := newStoreStub(db.DefaultChatPolicy(-100))
	scorer := &scorerStub{err: fmt.Errorf("all models down")}
	engine := newTestEngine(store, scorer, &transportStub{}, ResetOnAttempt)

	receipt, err := engine.DecideManualReport(context.Background(), ReportRequest{ChatID: -100, MessageID: 42, Text: "spam"})
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if receipt.Scored {
		t.Fatalf("receipt should not claim a score: %+v", receipt)
	}
	if len(store.reports) != 1 || store.reports[0].SpamProb != nil {
		t.Fatalf("report must be stored with null probability: %+v", store.reports)
	}
}

func TestSetPolicyField_InvalidValueLeavesPolicyUnchanged(t *testing.T) {
	t.Parallel()

	store := newStoreStub(db.DefaultChatPolicy(-100))
	engine := newTestEngine(store, &scorerStub{}, &transportStub{}, ResetOnAttempt)
	ctx := context.Background()

	for _, tc := range []struct{ field, value string }{
		{db.FieldThreshold, "1.5"},
		{db.FieldMaxWarnings, "zero"},
		{db.FieldPunishment, "exile"},
		{db.FieldLogging, "maybe"},
		{"unknown_field", "1"},
	} {
		if err := engine.SetPolicyField(ctx, -100, tc.field, tc.value); !errors.Is(err, coreerrors.ErrInvalidField) {
			t.Fatalf("%s=%q: expected ErrInvalidField, got %v", tc.field, tc.value, err)
		}
	}
	if len(store.fieldWrites) != 0 {
		t.Fatalf("invalid writes must not reach the store, got %d", len(store.fieldWrites))
	}

	if err := engine.SetPolicyField(ctx, -100, db.FieldThreshold, "0.85"); err != nil {
		t.Fatalf("valid write failed: %v", err)
	}
	if len(store.fieldWrites) != 1 || store.fieldWrites[0] != db.FieldThreshold {
		t.Fatalf("valid write should persist only the threshold column, got %v", store.fieldWrites)
	}
	if store.policy.Threshold != 0.85 {
		t.Fatalf("threshold not persisted: %+v", store.policy)
	}
}

func TestParseResetPolicy(t *testing.T) {
	t.Parallel()

	if got := ParseResetPolicy("success"); got != ResetOnSuccess {
		t.Fatalf("ParseResetPolicy(success) = %q", got)
	}
	for _, s := range []string{"attempt", "", "bogus", "ATTEMPT"} {
		if got := ParseResetPolicy(s); got != ResetOnAttempt {
			t.Fatalf("ParseResetPolicy(%q) = %q, want attempt", s, got)
		}
	}
}
