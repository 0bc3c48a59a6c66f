package sqlite

import (
	"context"
	"fmt"
)

// IncrementAndGet runs the upsert-increment and read as a single statement, so
// two racing violations for the same (chat, user) always observe distinct
// counts.
func (s *sqliteClient) IncrementAndGet(ctx context.Context, chatID, userID int64) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var count int
	err := s.db.GetContext(ctx, &count, `
		INSERT INTO violations (chat_id, user_id, count) VALUES (?, ?, 1)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET count = count + 1
		RETURNING count
	`, chatID, userID)
	if err != nil {
		return 0, fmt.Errorf("increment violations for chat %d user %d: %w", chatID, userID, err)
	}
	return count, nil
}

func (s *sqliteClient) ResetViolations(ctx context.Context, chatID, userID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		UPDATE violations SET count = 0 WHERE chat_id = ? AND user_id = ?
	`, chatID, userID); err != nil {
		return fmt.Errorf("reset violations for chat %d user %d: %w", chatID, userID, err)
	}
	return nil
}
