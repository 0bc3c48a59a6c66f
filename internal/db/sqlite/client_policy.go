package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iamwavecut/tool"

	"github.com/iamwavecut/phishguard/internal/db"
	coreerrors "github.com/iamwavecut/phishguard/internal/errors"
)

// GetPolicy returns the chat policy, creating a defaulted row on first
// reference. Creation is idempotent across concurrent callers. Hits are served
// from the in-process cache; this client is the only policy writer.
func (s *sqliteClient) GetPolicy(ctx context.Context, chatID int64) (*db.ChatPolicy, error) {
	if cached := s.policies.Get(chatID); cached != nil {
		return cached, nil
	}

	s.mutex.RLock()
	policy, err := s.selectPolicy(ctx, chatID)
	s.mutex.RUnlock()
	if err == nil {
		s.policies.Set(policy)
		return policy, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get policy for chat %d: %w", chatID, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	defaults := db.DefaultChatPolicy(chatID)
	if _, err := s.db.NamedExecContext(ctx, `
		INSERT INTO chats (chat_id, threshold, max_warnings, punishment, logging, anon_reports)
		VALUES (:chat_id, :threshold, :max_warnings, :punishment, :logging, :anon_reports)
		ON CONFLICT(chat_id) DO NOTHING
	`, defaults); err != nil {
		return nil, fmt.Errorf("create default policy for chat %d: %w", chatID, err)
	}
	policy, err = s.selectPolicy(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.policies.Set(policy)
	return policy, nil
}

func (s *sqliteClient) selectPolicy(ctx context.Context, chatID int64) (*db.ChatPolicy, error) {
	policy := &db.ChatPolicy{}
	err := s.db.GetContext(ctx, policy, `
		SELECT chat_id, threshold, max_warnings, punishment, logging, anon_reports
		FROM chats WHERE chat_id = ?
	`, chatID)
	if err != nil {
		return nil, err
	}
	return policy, nil
}

var policyColumns = map[string]bool{
	db.FieldThreshold:   true,
	db.FieldMaxWarnings: true,
	db.FieldPunishment:  true,
	db.FieldLogging:     true,
	db.FieldAnonReports: true,
}

// UpdatePolicyField writes exactly one column, so interleaved writers touching
// different fields of the same chat cannot clobber each other.
func (s *sqliteClient) UpdatePolicyField(ctx context.Context, policy *db.ChatPolicy, field string) error {
	if !policyColumns[field] {
		return fmt.Errorf("update policy field %q: %w", field, coreerrors.ErrInvalidField)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// field is from the closed column set above, safe to splice.
	query := fmt.Sprintf("UPDATE chats SET %s = :%s WHERE chat_id = :chat_id", field, field)
	if err := tool.Err(s.db.NamedExecContext(ctx, query, policy)); err != nil {
		s.policies.Remove(policy.ChatID)
		return err
	}
	// The rest of the snapshot may be stale, force a refetch.
	s.policies.Remove(policy.ChatID)
	return nil
}
