package moderation

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/phishguard/internal/db"
	coreerrors "github.com/iamwavecut/phishguard/internal/errors"
	"github.com/iamwavecut/phishguard/internal/observability"
)

// Transport executes moderation actions in the chat backend.
type Transport interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	RestrictUser(ctx context.Context, chatID, userID int64) error
	BanUser(ctx context.Context, chatID, userID int64) error
}

type auditStore interface {
	AddEnforcement(ctx context.Context, record *db.EnforcementRecord) error
}

// Dispatcher translates an escalation decision into a transport action and
// records it. Exactly one EnforcementRecord is written per escalation,
// whether or not the transport action succeeded.
type Dispatcher struct {
	transport Transport
	store     auditStore
	logger    *log.Entry
}

func NewDispatcher(transport Transport, store auditStore) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		store:     store,
		logger:    log.WithField("object", "Dispatcher"),
	}
}

func (d *Dispatcher) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return d.transport.DeleteMessage(ctx, chatID, messageID)
}

// Apply dispatches the punishment. The punishment set is closed: an
// unrecognized kind is an error, never a silent no-op.
func (d *Dispatcher) Apply(ctx context.Context, chatID, userID int64, kind db.PunishmentKind, reason string) error {
	var transportErr error
	switch kind {
	case db.PunishmentWarn:
		// informational only, no transport action
	case db.PunishmentMute:
		transportErr = d.transport.RestrictUser(ctx, chatID, userID)
	case db.PunishmentBan:
		transportErr = d.transport.BanUser(ctx, chatID, userID)
	default:
		return fmt.Errorf("unknown punishment kind %q", kind)
	}

	record := &db.EnforcementRecord{
		ChatID:     chatID,
		UserID:     userID,
		Punishment: kind,
		Reason:     reason,
	}
	if err := d.store.AddEnforcement(ctx, record); err != nil {
		d.logger.WithError(err).WithFields(log.Fields{
			"chat_id": chatID,
			"user_id": userID,
		}).Error("failed to record enforcement")
	}
	observability.RecordEscalation(string(kind))

	if transportErr != nil {
		return errors.Wrapf(coreerrors.ErrEnforcementFailed, "%s: %v", kind, transportErr)
	}
	return nil
}
