package db

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	coreerrors "github.com/iamwavecut/phishguard/internal/errors"
)

// PunishmentKind is the closed set of escalation actions. Unknown values are
// rejected at the policy write boundary, not defaulted.
type PunishmentKind string

const (
	PunishmentWarn PunishmentKind = "warn"
	PunishmentMute PunishmentKind = "mute"
	PunishmentBan  PunishmentKind = "ban"
)

func ParsePunishment(s string) (PunishmentKind, error) {
	switch PunishmentKind(strings.ToLower(strings.TrimSpace(s))) {
	case PunishmentWarn:
		return PunishmentWarn, nil
	case PunishmentMute:
		return PunishmentMute, nil
	case PunishmentBan:
		return PunishmentBan, nil
	}
	return "", errors.Wrapf(coreerrors.ErrInvalidField, "unknown punishment %q", s)
}

type (
	// ChatPolicy is the per-chat moderation configuration, created lazily with
	// defaults on first reference and never deleted.
	ChatPolicy struct {
		ChatID           int64          `db:"chat_id"`
		Threshold        float64        `db:"threshold"`
		MaxWarnings      int            `db:"max_warnings"`
		Punishment       PunishmentKind `db:"punishment"`
		LoggingEnabled   bool           `db:"logging"`
		AnonymousReports bool           `db:"anon_reports"`
	}

	// Report is a manual moderator report, append-only.
	Report struct {
		ID          int64     `db:"id"`
		ChatID      int64     `db:"chat_id"`
		MessageText string    `db:"message_text"`
		SpamProb    *float64  `db:"spam_prob"`
		ReporterID  *int64    `db:"reporter_id"`
		CreatedAt   time.Time `db:"created_at"`
	}

	// EnforcementRecord is the append-only audit trail of escalation actions.
	EnforcementRecord struct {
		ID         int64          `db:"id"`
		ChatID     int64          `db:"chat_id"`
		UserID     int64          `db:"user_id"`
		Punishment PunishmentKind `db:"punishment"`
		Reason     string         `db:"reason"`
		CreatedAt  time.Time      `db:"created_at"`
	}

	// ScoreLog is an optional append-only record of a scoring event. SpamProb
	// is NULL when the classifier was unavailable for the message.
	ScoreLog struct {
		ID          int64     `db:"id"`
		ChatID      int64     `db:"chat_id"`
		MessageText string    `db:"message_text"`
		SpamProb    *float64  `db:"spam_prob"`
		Threshold   float64   `db:"threshold"`
		Removed     bool      `db:"removed"`
		CreatedAt   time.Time `db:"created_at"`
	}

	// ChatStats aggregates the append-only tables for /stats.
	ChatStats struct {
		Removed      int `db:"removed"`
		Reports      int `db:"reports"`
		Enforcements int `db:"enforcements"`
	}
)

const (
	FieldThreshold   = "threshold"
	FieldMaxWarnings = "max_warnings"
	FieldPunishment  = "punishment"
	FieldLogging     = "logging"
	FieldAnonReports = "anon_reports"
)

func DefaultChatPolicy(chatID int64) *ChatPolicy {
	return &ChatPolicy{
		ChatID:           chatID,
		Threshold:        0.9,
		MaxWarnings:      3,
		Punishment:       PunishmentBan,
		LoggingEnabled:   true,
		AnonymousReports: true,
	}
}

// SetField validates and applies a single policy field write. Unknown fields
// and ill-typed values fail with ErrInvalidField without mutating the policy.
func (p *ChatPolicy) SetField(field, value string) error {
	value = strings.TrimSpace(value)
	switch field {
	case FieldThreshold:
		threshold, err := strconv.ParseFloat(value, 64)
		if err != nil || threshold < 0 || threshold > 1 {
			return errors.Wrapf(coreerrors.ErrInvalidField, "threshold must be in [0,1], got %q", value)
		}
		p.Threshold = threshold
	case FieldMaxWarnings:
		maxWarnings, err := strconv.Atoi(value)
		if err != nil || maxWarnings < 1 {
			return errors.Wrapf(coreerrors.ErrInvalidField, "max_warnings must be a positive integer, got %q", value)
		}
		p.MaxWarnings = maxWarnings
	case FieldPunishment:
		punishment, err := ParsePunishment(value)
		if err != nil {
			return err
		}
		p.Punishment = punishment
	case FieldLogging:
		enabled, err := parseToggle(value)
		if err != nil {
			return err
		}
		p.LoggingEnabled = enabled
	case FieldAnonReports:
		enabled, err := parseToggle(value)
		if err != nil {
			return err
		}
		p.AnonymousReports = enabled
	default:
		return errors.Wrapf(coreerrors.ErrInvalidField, "unknown field %q", field)
	}
	return nil
}

func parseToggle(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, errors.Wrapf(coreerrors.ErrInvalidField, "expected on/off, got %q", value)
}
