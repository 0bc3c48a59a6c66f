package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iamwavecut/phishguard/internal/db"
)

func (s *sqliteClient) AddReport(ctx context.Context, report *db.Report) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (chat_id, message_text, spam_prob, reporter_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, report.ChatID, report.MessageText, report.SpamProb, report.ReporterID, report.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *sqliteClient) AddEnforcement(ctx context.Context, record *db.EnforcementRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enforcements (chat_id, user_id, punishment, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, record.ChatID, record.UserID, record.Punishment, record.Reason, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert enforcement: %w", err)
	}
	return nil
}

func (s *sqliteClient) AddScoreLog(ctx context.Context, entry *db.ScoreLog) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO score_logs (chat_id, message_text, spam_prob, threshold, removed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ChatID, entry.MessageText, entry.SpamProb, entry.Threshold, entry.Removed, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert score log: %w", err)
	}
	return nil
}

func (s *sqliteClient) GetChatStats(ctx context.Context, chatID int64) (*db.ChatStats, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := &db.ChatStats{}
	err := s.db.GetContext(ctx, stats, `
		SELECT
			(SELECT COUNT(*) FROM score_logs WHERE chat_id = ? AND removed = 1) AS removed,
			(SELECT COUNT(*) FROM reports WHERE chat_id = ?) AS reports,
			(SELECT COUNT(*) FROM enforcements WHERE chat_id = ?) AS enforcements
	`, chatID, chatID, chatID)
	if err != nil {
		return nil, fmt.Errorf("get stats for chat %d: %w", chatID, err)
	}
	return stats, nil
}

func (s *sqliteClient) ListEnforcements(ctx context.Context, chatID int64, limit int) ([]*db.EnforcementRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var records []*db.EnforcementRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, chat_id, user_id, punishment, reason, created_at
		FROM enforcements
		WHERE chat_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list enforcements for chat %d: %w", chatID, err)
	}
	return records, nil
}
