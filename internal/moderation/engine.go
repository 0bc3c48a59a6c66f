package moderation

import (
	"context"
	"strings"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/phishguard/internal/db"
	coreerrors "github.com/iamwavecut/phishguard/internal/errors"
	"github.com/iamwavecut/phishguard/internal/observability"
)

// ResetPolicy selects when the violation counter is cleared after an
// escalation. Resetting on attempt (the default) avoids warning spam when the
// punishment transport is flaky, at the cost of letting a user re-escalate
// for free after a transient failure. Resetting on success keeps the user at
// the boundary until a punishment actually lands.
type ResetPolicy string

const (
	ResetOnAttempt ResetPolicy = "attempt"
	ResetOnSuccess ResetPolicy = "success"
)

func ParseResetPolicy(s string) ResetPolicy {
	if ResetPolicy(strings.ToLower(strings.TrimSpace(s))) == ResetOnSuccess {
		return ResetOnSuccess
	}
	return ResetOnAttempt
}

type (
	// Message is an inbound group message already filtered upstream: non-empty
	// text, not a private chat.
	Message struct {
		ChatID    int64
		UserID    int64
		MessageID int
		Text      string
	}

	// Verdict is the structured outcome of the automated path.
	Verdict struct {
		CaseID      string
		Scored      bool
		Score       float64
		Removed     bool // message crossed the threshold, removal requested
		Deleted     bool // transport confirmed the deletion
		Warnings    int
		MaxWarnings int
		Escalated   bool
		Punishment  db.PunishmentKind
		Enforced    bool
	}

	// ReportRequest is a moderator-initiated report of an existing message.
	// Authorization is the caller's responsibility.
	ReportRequest struct {
		ChatID     int64
		ReporterID int64
		MessageID  int
		Text       string
	}

	// ReportReceipt is the structured outcome of the manual path.
	ReportReceipt struct {
		CaseID    string
		Scored    bool
		Score     float64
		Deleted   bool
		Anonymous bool
	}
)

// Scorer is the classifier gateway contract.
type Scorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

type engineStore interface {
	GetPolicy(ctx context.Context, chatID int64) (*db.ChatPolicy, error)
	UpdatePolicyField(ctx context.Context, policy *db.ChatPolicy, field string) error
	IncrementAndGet(ctx context.Context, chatID, userID int64) (int, error)
	ResetViolations(ctx context.Context, chatID, userID int64) error
	AddScoreLog(ctx context.Context, entry *db.ScoreLog) error
	AddReport(ctx context.Context, report *db.Report) error
}

// Engine is the moderation decision state machine. Per (chat, user) the state
// is implicit in the ledger count: Clean (0) → Warned(n) → Escalated, with the
// counter reset right after the punishment fires. The engine holds no locks of
// its own; the ledger's atomic increment is the concurrency guarantee.
type Engine struct {
	store       engineStore
	scorer      Scorer
	dispatcher  *Dispatcher
	resetPolicy ResetPolicy
	logger      *log.Entry
}

func NewEngine(store engineStore, scorer Scorer, dispatcher *Dispatcher, resetPolicy ResetPolicy) *Engine {
	return &Engine{
		store:       store,
		scorer:      scorer,
		dispatcher:  dispatcher,
		resetPolicy: resetPolicy,
		logger:      log.WithField("object", "Engine"),
	}
}

// DecideAutomated runs the automated path for a scored group message: compare
// against the chat threshold, request removal, bump the ledger, and escalate
// once the warnings limit is reached. Collaborator failures never escape as
// panics; persistence failures are retried once and then surfaced as
// ErrPersistenceFailure for this message only.
func (e *Engine) DecideAutomated(ctx context.Context, msg Message) (*Verdict, error) {
	verdict := &Verdict{CaseID: uuid.NewRandom().String()}
	entry := e.logger.WithFields(log.Fields{
		"method":  "DecideAutomated",
		"case_id": verdict.CaseID,
		"chat_id": msg.ChatID,
		"user_id": msg.UserID,
	})

	policy, err := e.getPolicyRetry(ctx, msg.ChatID)
	if err != nil {
		return verdict, err
	}
	verdict.MaxWarnings = policy.MaxWarnings

	score, err := e.scorer.Score(ctx, msg.Text)
	if err != nil {
		entry.WithError(err).Warn("scoring unavailable, treating as no signal")
		if policy.LoggingEnabled {
			e.logScore(ctx, entry, policy, msg, nil, false)
		}
		return verdict, nil
	}
	verdict.Scored = true
	verdict.Score = score
	verdict.Removed = score >= policy.Threshold

	if policy.LoggingEnabled {
		e.logScore(ctx, entry, policy, msg, &score, verdict.Removed)
	}

	if !verdict.Removed {
		return verdict, nil
	}

	if err := e.dispatcher.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		// The violation is about user behavior, not message survival: keep going.
		entry.WithError(err).Error("failed to delete message")
	} else {
		verdict.Deleted = true
		observability.RecordRemoval()
	}

	warns, err := e.incrementRetry(ctx, msg.ChatID, msg.UserID)
	if err != nil {
		entry.WithError(err).Error("failed to increment violations")
		return verdict, err
	}
	verdict.Warnings = warns

	if warns < policy.MaxWarnings {
		return verdict, nil
	}

	verdict.Escalated = true
	verdict.Punishment = policy.Punishment

	enforceErr := e.dispatcher.Apply(ctx, msg.ChatID, msg.UserID, policy.Punishment, automatedReason(policy.Punishment))
	if enforceErr != nil {
		entry.WithError(enforceErr).Error("failed to apply punishment")
	} else {
		verdict.Enforced = true
	}

	if e.resetPolicy == ResetOnAttempt || enforceErr == nil {
		if err := e.store.ResetViolations(ctx, msg.ChatID, msg.UserID); err != nil {
			entry.WithError(err).Error("failed to reset violations")
		}
	}

	return verdict, nil
}

// DecideManualReport records a moderator report: best-effort score, a Report
// row honoring the chat's anonymity setting, and a best-effort deletion of the
// original message. Manual reports never touch the warning counter.
func (e *Engine) DecideManualReport(ctx context.Context, req ReportRequest) (*ReportReceipt, error) {
	receipt := &ReportReceipt{CaseID: uuid.NewRandom().String()}
	entry := e.logger.WithFields(log.Fields{
		"method":  "DecideManualReport",
		"case_id": receipt.CaseID,
		"chat_id": req.ChatID,
	})

	policy, err := e.getPolicyRetry(ctx, req.ChatID)
	if err != nil {
		return receipt, err
	}
	receipt.Anonymous = policy.AnonymousReports

	var prob *float64
	if score, err := e.scorer.Score(ctx, req.Text); err != nil {
		entry.WithError(err).Debug("report scoring unavailable, recording null probability")
	} else {
		receipt.Scored = true
		receipt.Score = score
		prob = &score
	}

	report := &db.Report{
		ChatID:      req.ChatID,
		MessageText: req.Text,
		SpamProb:    prob,
	}
	if !policy.AnonymousReports {
		reporterID := req.ReporterID
		report.ReporterID = &reporterID
	}
	if err := e.store.AddReport(ctx, report); err != nil {
		return receipt, errors.Wrapf(coreerrors.ErrPersistenceFailure, "add report: %v", err)
	}

	if err := e.dispatcher.DeleteMessage(ctx, req.ChatID, req.MessageID); err != nil {
		entry.WithError(err).Error("failed to delete reported message")
	} else {
		receipt.Deleted = true
	}

	return receipt, nil
}

// GetPolicy returns the chat policy, creating defaults on first reference.
func (e *Engine) GetPolicy(ctx context.Context, chatID int64) (*db.ChatPolicy, error) {
	return e.getPolicyRetry(ctx, chatID)
}

// SetPolicyField validates and writes a single policy field. Unknown fields
// or ill-typed values fail with ErrInvalidField, leaving the stored policy
// unchanged.
func (e *Engine) SetPolicyField(ctx context.Context, chatID int64, field, value string) error {
	policy, err := e.getPolicyRetry(ctx, chatID)
	if err != nil {
		return err
	}
	if err := policy.SetField(field, value); err != nil {
		return err
	}
	if err := e.store.UpdatePolicyField(ctx, policy, field); err != nil {
		if errors.Is(err, coreerrors.ErrInvalidField) {
			return err
		}
		return errors.Wrapf(coreerrors.ErrPersistenceFailure, "update policy field %s: %v", field, err)
	}
	return nil
}

// ApplyEnforcement dispatches a punishment outside the automated escalation
// flow, recording it with the caller's reason.
func (e *Engine) ApplyEnforcement(ctx context.Context, chatID, userID int64, kind db.PunishmentKind, reason string) error {
	return e.dispatcher.Apply(ctx, chatID, userID, kind, reason)
}

func (e *Engine) logScore(ctx context.Context, entry *log.Entry, policy *db.ChatPolicy, msg Message, prob *float64, removed bool) {
	err := e.store.AddScoreLog(ctx, &db.ScoreLog{
		ChatID:      msg.ChatID,
		MessageText: msg.Text,
		SpamProb:    prob,
		Threshold:   policy.Threshold,
		Removed:     removed,
	})
	if err != nil {
		entry.WithError(err).Error("failed to write score log")
	}
}

func (e *Engine) getPolicyRetry(ctx context.Context, chatID int64) (*db.ChatPolicy, error) {
	policy, err := e.store.GetPolicy(ctx, chatID)
	if err != nil {
		if policy, err = e.store.GetPolicy(ctx, chatID); err != nil {
			return nil, errors.Wrapf(coreerrors.ErrPersistenceFailure, "get policy: %v", err)
		}
	}
	return policy, nil
}

func (e *Engine) incrementRetry(ctx context.Context, chatID, userID int64) (int, error) {
	warns, err := e.store.IncrementAndGet(ctx, chatID, userID)
	if err != nil {
		if warns, err = e.store.IncrementAndGet(ctx, chatID, userID); err != nil {
			return 0, errors.Wrapf(coreerrors.ErrPersistenceFailure, "increment violations: %v", err)
		}
	}
	return warns, nil
}

func automatedReason(kind db.PunishmentKind) string {
	return "auto: reached warnings limit, punishment " + string(kind)
}
