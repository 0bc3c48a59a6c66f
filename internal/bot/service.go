package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/iamwavecut/phishguard/internal/config"
	"github.com/iamwavecut/phishguard/internal/db"
	"github.com/iamwavecut/phishguard/internal/policy/permissions"
)

type service struct {
	bot *api.BotAPI
	db  db.Client
}

func NewService(botAPI *api.BotAPI, dbClient db.Client) Service {
	return &service{
		bot: botAPI,
		db:  dbClient,
	}
}

func (s *service) GetBot() *api.BotAPI {
	return s.bot
}

func (s *service) GetDB() db.Client {
	return s.db
}

func (s *service) GetLanguage(_ context.Context, _ int64, user *api.User) string {
	if user != nil && user.LanguageCode != "" {
		return user.LanguageCode
	}
	return config.Get().DefaultLanguage
}

// IsModerator is the authorization collaborator: manual reports and policy
// commands are gated on it, the automated path never calls it.
func (s *service) IsModerator(_ context.Context, chatID, userID int64) (bool, error) {
	member, err := s.bot.GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to get chat member")
	}
	return permissions.IsPrivilegedModerator(&member), nil
}
