package telegram

import (
	"context"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	coreerrors "github.com/iamwavecut/phishguard/internal/errors"
)

const msgNoRights = "not enough rights"

// Operations implements the moderation transport against the Telegram Bot API.
type Operations struct {
	bot *api.BotAPI
}

func NewOperations(bot *api.BotAPI) *Operations {
	return &Operations{bot: bot}
}

func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := o.bot.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
		return errors.Wrap(err, "failed to delete message")
	}
	return nil
}

// RestrictUser revokes the user's send capability indefinitely; lifting the
// restriction is a manual moderator action, not managed here.
func (o *Operations) RestrictUser(ctx context.Context, chatID, userID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	config := api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		Permissions: &api.ChatPermissions{},

		UseIndependentChatPermissions: true,
	}
	if _, err := o.bot.Request(config); err != nil {
		return withPrivilegeError(err, "restrict")
	}
	return nil
}

func (o *Operations) BanUser(ctx context.Context, chatID, userID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	config := api.BanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		RevokeMessages: true,
	}
	if _, err := o.bot.Request(config); err != nil {
		return withPrivilegeError(err, "ban")
	}
	return nil
}

func withPrivilegeError(err error, operation string) error {
	if strings.Contains(err.Error(), msgNoRights) {
		return errors.Wrapf(coreerrors.ErrUnauthorized, "%s: bot lacks chat privileges", operation)
	}
	return errors.Wrapf(err, "failed to %s user", operation)
}
