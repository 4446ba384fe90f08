package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ageniuscoder/tradechat/internal/chat"
)

func (s *Postgres) ListConversations(ctx context.Context, userID int64) (map[string][]chat.Record, error) {
	rows, err := s.Db.QueryContext(ctx, `
		SELECT conversation_id, record
		FROM conversation_messages
		WHERE user_a = $1 OR user_b = $1
		ORDER BY sent_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]chat.Record)
	for rows.Next() {
		var (
			convID string
			raw    []byte
		)
		if err := rows.Scan(&convID, &raw); err != nil {
			return nil, err
		}
		var rec chat.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("conversation %s: %w", convID, err)
		}
		out[convID] = append(out[convID], rec)
	}
	return out, rows.Err()
}

func (s *Postgres) AppendMessage(ctx context.Context, conversationID string, rec chat.Record) (bool, error) {
	a, b, err := chat.Participants(conversationID)
	if err != nil {
		return false, err
	}
	msg, err := rec.Message(conversationID)
	if err != nil {
		return false, err
	}
	key := msg.Key()
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}

	res, err := s.Db.ExecContext(ctx, `
		INSERT INTO conversation_messages
			(conversation_id, user_a, user_b, sender_id, sent_at, fingerprint, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (conversation_id, sender_id, sent_at, fingerprint) DO NOTHING`,
		conversationID, a, b, key.SenderID, key.SentAt, strconv.FormatUint(key.Fingerprint, 16), string(raw))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Postgres) Peers(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.Db.QueryContext(ctx, `
		SELECT DISTINCT CASE WHEN user_a = $1 THEN user_b ELSE user_a END
		FROM conversation_messages
		WHERE user_a = $1 OR user_b = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		peers = append(peers, uid)
	}
	return peers, rows.Err()
}
