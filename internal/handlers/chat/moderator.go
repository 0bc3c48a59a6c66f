package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/phishguard/internal/bot"
	"github.com/iamwavecut/phishguard/internal/config"
	"github.com/iamwavecut/phishguard/internal/db"
	"github.com/iamwavecut/phishguard/internal/i18n"
	"github.com/iamwavecut/phishguard/internal/moderation"
)

// botSender is the slice of the bot API the moderator talks through.
type botSender interface {
	Send(c api.Chattable) (api.Message, error)
	Request(c api.Chattable) (*api.APIResponse, error)
}

// Moderator runs the moderation pipeline over inbound updates: the automated
// scoring path for plain group messages and the command surface for
// moderators. It is also a lifecycle component so its deferred notice
// cleanups stop with the process.
type Moderator struct {
	s      bot.Service
	sender botSender
	engine *moderation.Engine
	cfg    config.Moderation

	runtimeCtx context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	started    bool
}

func NewModerator(s bot.Service, engine *moderation.Engine, cfg config.Moderation) *Moderator {
	return &Moderator{
		s:      s,
		sender: s.GetBot(),
		engine: engine,
		cfg:    cfg,
	}
}

func (m *Moderator) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	m.runtimeCtx, m.cancel = context.WithCancel(ctx)
	m.started = true
	return nil
}

func (m *Moderator) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (m *Moderator) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u.MyChatMember != nil {
		m.handleAddedToChat(u.MyChatMember)
		return false, nil
	}

	msg := u.Message
	if msg == nil || chat == nil || user == nil {
		return true, nil
	}

	if chat.IsPrivate() {
		m.sendPrivateGreeting(chat.ID)
		return false, nil
	}

	lang := m.s.GetLanguage(ctx, chat.ID, user)
	if msg.IsCommand() {
		return false, m.handleCommand(ctx, msg, chat, user, lang)
	}

	if msg.Text == "" {
		return true, nil
	}

	verdict, err := m.engine.DecideAutomated(ctx, moderation.Message{
		ChatID:    chat.ID,
		UserID:    user.ID,
		MessageID: msg.MessageID,
		Text:      msg.Text,
	})
	if err != nil {
		m.getLogEntry().WithError(err).WithField("chat_id", chat.ID).Error("automated decision failed for this message")
	}
	if verdict == nil || !verdict.Removed {
		return true, nil
	}
	if err != nil {
		// The counter state is unknown, a warning notice would show garbage.
		return false, nil
	}

	// The user sees their warning count even when enforcement failed.
	warnText := fmt.Sprintf(
		i18n.Get("⚠️ Message from %s removed.\nWarning #%d of %d.", lang),
		bot.GetUN(user), verdict.Warnings, verdict.MaxWarnings,
	)
	m.sendTransientNotice(chat.ID, warnText)

	if verdict.Escalated {
		m.sendTransientNotice(chat.ID, m.escalationText(verdict.Punishment, bot.GetUN(user), lang))
	}

	return false, nil
}

func (m *Moderator) escalationText(kind db.PunishmentKind, userName, lang string) string {
	switch kind {
	case db.PunishmentBan:
		return fmt.Sprintf(i18n.Get("⛔ %s has been banned (reached the warnings limit).", lang), userName)
	case db.PunishmentMute:
		return fmt.Sprintf(i18n.Get("🔇 %s has been muted (reached the warnings limit).", lang), userName)
	default:
		return fmt.Sprintf(i18n.Get("⚠️ %s reached the warnings limit, no action is configured.", lang), userName)
	}
}

// sendTransientNotice posts a notice and schedules its self-cleanup.
func (m *Moderator) sendTransientNotice(chatID int64, text string) {
	notice := api.NewMessage(chatID, text)
	notice.DisableNotification = true
	sent, err := m.sender.Send(notice)
	if err != nil {
		m.getLogEntry().WithError(err).Error("failed to send notice")
		return
	}
	if sent.MessageID == 0 || m.cfg.NoticeCleanupTimeout <= 0 {
		return
	}
	m.scheduleAfter(m.cfg.NoticeCleanupTimeout, func(runCtx context.Context) {
		select {
		case <-runCtx.Done():
			return
		default:
		}
		if _, err := m.sender.Request(api.NewDeleteMessage(chatID, sent.MessageID)); err != nil {
			m.getLogEntry().WithError(err).Error("failed to delete notice")
		}
	})
}

func (m *Moderator) handleAddedToChat(update *api.ChatMemberUpdated) {
	status := update.NewChatMember.Status
	if status != "member" && status != "administrator" {
		return
	}
	text := "👋 Thanks for adding me!\n\n" +
		"To remove phishing messages I need admin rights:\n" +
		"• Delete messages\n" +
		"• Ban/restrict users"
	msg := api.NewMessage(update.Chat.ID, text)
	if _, err := m.sender.Send(msg); err != nil {
		m.getLogEntry().WithError(err).WithField("chat_id", update.Chat.ID).Error("cant send welcome message")
	}
}

func (m *Moderator) sendPrivateGreeting(chatID int64) {
	text := "👋 Hi! I am an anti-phishing bot for groups.\n\n" +
		"What I do:\n" +
		"• Automatically remove phishing messages using a classifier.\n" +
		"• Admins can mark missed messages with /report (as a reply).\n" +
		"• Configurable: detection threshold, logging, anonymous reports, punishments.\n\n" +
		"Commands (in groups, admins only):\n" +
		"• /threshold weak|normal|high - detection sensitivity\n" +
		"• /report - reply to a message to mark it as spam\n" +
		"• /anon_reports on|off - anonymous reports\n" +
		"• /punishment warn|mute|ban - action after the warnings limit\n" +
		"• /max_warnings <n> - warnings before punishment\n" +
		"• /logging on|off - classifier result logging\n" +
		"• /settings - current settings\n" +
		"• /stats - removal/report statistics\n" +
		"• /banned - enforcement history"
	msg := api.NewMessage(chatID, text)
	if _, err := m.sender.Send(msg); err != nil {
		m.getLogEntry().WithError(err).Error("cant send greeting")
	}
}

func (m *Moderator) scheduleAfter(delay time.Duration, task func(ctx context.Context)) {
	runCtx := m.getRuntimeContext()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-runCtx.Done():
			return
		case <-timer.C:
			task(runCtx)
		}
	}()
}

func (m *Moderator) getRuntimeContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runtimeCtx != nil {
		return m.runtimeCtx
	}
	return context.Background()
}

func (m *Moderator) getLogEntry() *log.Entry {
	return log.WithField("object", "Moderator")
}
