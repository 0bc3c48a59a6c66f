package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/iamwavecut/phishguard/internal/db"
	coreerrors "github.com/iamwavecut/phishguard/internal/errors"
	"github.com/iamwavecut/phishguard/internal/i18n"
	"github.com/iamwavecut/phishguard/internal/moderation"
)

// Threshold presets trade recall for precision.
var thresholdPresets = map[string]float64{
	"weak":   0.8,
	"normal": 0.9,
	"high":   0.95,
}

func (m *Moderator) handleCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User, lang string) error {
	command := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	switch command {
	case "report", "spam":
		return m.handleReport(ctx, msg, chat, user, lang)
	case "threshold":
		return m.handleThreshold(ctx, chat, user, args, lang)
	case "punishment":
		return m.handleSetField(ctx, chat, user, db.FieldPunishment, args, lang,
			"Usage: /punishment warn|mute|ban.")
	case "anon_reports":
		return m.handleSetField(ctx, chat, user, db.FieldAnonReports, args, lang,
			"Usage: /anon_reports on|off.")
	case "logging":
		return m.handleSetField(ctx, chat, user, db.FieldLogging, args, lang,
			"Usage: /logging on|off.")
	case "max_warnings":
		return m.handleSetField(ctx, chat, user, db.FieldMaxWarnings, args, lang,
			"Usage: /max_warnings <positive number>.")
	case "settings":
		return m.handleSettings(ctx, chat, user, lang)
	case "stats":
		return m.handleStats(ctx, chat, user, lang)
	case "banned":
		return m.handleBanned(ctx, chat, user, lang)
	}
	return nil
}

// handleReport lets a moderator flag a replied-to message that the classifier
// let through. The report command itself is removed right away to keep the
// reporter unexposed.
func (m *Moderator) handleReport(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User, lang string) error {
	if !m.requireModerator(ctx, chat.ID, user, lang) {
		return nil
	}
	if msg.ReplyToMessage == nil {
		m.sendTransientNotice(chat.ID, i18n.Get("Reply to a message, then send /report.", lang))
		return nil
	}
	target := msg.ReplyToMessage

	if _, err := m.sender.Request(api.NewDeleteMessage(chat.ID, msg.MessageID)); err != nil {
		m.getLogEntry().WithError(err).Error("cant delete report command message")
	}

	// Media messages carry their text in the caption.
	text := target.Text
	if text == "" {
		text = target.Caption
	}

	if _, err := m.engine.DecideManualReport(ctx, moderation.ReportRequest{
		ChatID:     chat.ID,
		ReporterID: user.ID,
		MessageID:  target.MessageID,
		Text:       text,
	}); err != nil {
		m.getLogEntry().WithError(err).WithField("chat_id", chat.ID).Error("manual report failed")
		return err
	}

	m.sendTransientNotice(chat.ID, i18n.Get("✅ Message marked as spam and stored in reports.", lang))
	return nil
}

func (m *Moderator) handleThreshold(ctx context.Context, chat *api.Chat, user *api.User, args, lang string) error {
	if !m.requireModerator(ctx, chat.ID, user, lang) {
		return nil
	}
	value := args
	if preset, ok := thresholdPresets[strings.ToLower(args)]; ok {
		value = strconv.FormatFloat(preset, 'f', -1, 64)
	}
	if err := m.engine.SetPolicyField(ctx, chat.ID, db.FieldThreshold, value); err != nil {
		if errors.Is(err, coreerrors.ErrInvalidField) {
			m.sendTransientNotice(chat.ID, i18n.Get("Usage: /threshold weak|normal|high or a number between 0 and 1.", lang))
			return nil
		}
		return err
	}
	m.sendTransientNotice(chat.ID, i18n.Get("✅ Setting updated.", lang))
	return nil
}

func (m *Moderator) handleSetField(ctx context.Context, chat *api.Chat, user *api.User, field, args, lang, usage string) error {
	if !m.requireModerator(ctx, chat.ID, user, lang) {
		return nil
	}
	if err := m.engine.SetPolicyField(ctx, chat.ID, field, args); err != nil {
		if errors.Is(err, coreerrors.ErrInvalidField) {
			m.sendTransientNotice(chat.ID, i18n.Get(usage, lang))
			return nil
		}
		return err
	}
	m.sendTransientNotice(chat.ID, i18n.Get("✅ Setting updated.", lang))
	return nil
}

func (m *Moderator) handleSettings(ctx context.Context, chat *api.Chat, user *api.User, lang string) error {
	if !m.requireModerator(ctx, chat.ID, user, lang) {
		return nil
	}
	policy, err := m.engine.GetPolicy(ctx, chat.ID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf(
		i18n.Get("Current settings:\n• threshold: %.2f\n• max warnings: %d\n• punishment: %s\n• logging: %s\n• anonymous reports: %s", lang),
		policy.Threshold,
		policy.MaxWarnings,
		policy.Punishment,
		onOff(policy.LoggingEnabled, lang),
		onOff(policy.AnonymousReports, lang),
	)
	m.sendTransientNotice(chat.ID, text)
	return nil
}

func (m *Moderator) handleStats(ctx context.Context, chat *api.Chat, user *api.User, lang string) error {
	if !m.requireModerator(ctx, chat.ID, user, lang) {
		return nil
	}
	stats, err := m.s.GetDB().GetChatStats(ctx, chat.ID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf(
		i18n.Get("Moderation stats:\n• messages removed: %d\n• manual reports: %d\n• enforcements: %d", lang),
		stats.Removed, stats.Reports, stats.Enforcements,
	)
	m.sendTransientNotice(chat.ID, text)
	return nil
}

func (m *Moderator) handleBanned(ctx context.Context, chat *api.Chat, user *api.User, lang string) error {
	if !m.requireModerator(ctx, chat.ID, user, lang) {
		return nil
	}
	records, err := m.s.GetDB().ListEnforcements(ctx, chat.ID, 20)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		m.sendTransientNotice(chat.ID, i18n.Get("Nobody is banned here yet.", lang))
		return nil
	}
	var b strings.Builder
	b.WriteString(i18n.Get("Recent enforcements:", lang))
	for _, rec := range records {
		b.WriteString(fmt.Sprintf("\n• user %d: %s (%s)", rec.UserID, rec.Punishment, rec.CreatedAt.Format("2006-01-02 15:04")))
	}
	m.sendTransientNotice(chat.ID, b.String())
	return nil
}

// requireModerator gates a command on chat moderator privileges. Lookup
// failures count as not privileged.
func (m *Moderator) requireModerator(ctx context.Context, chatID int64, user *api.User, lang string) bool {
	ok, err := m.s.IsModerator(ctx, chatID, user.ID)
	if err != nil {
		m.getLogEntry().WithError(err).WithField("chat_id", chatID).Error("cant check moderator status")
		return false
	}
	if !ok {
		m.sendTransientNotice(chatID, i18n.Get("This command is available to administrators only.", lang))
	}
	return ok
}

func onOff(v bool, lang string) string {
	if v {
		return i18n.Get("on", lang)
	}
	return i18n.Get("off", lang)
}
