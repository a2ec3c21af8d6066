package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/AliceSyndrome285/CradleAI/store"
)

func (d *DB) CreateChatMessage(ctx context.Context, create *store.ChatMessage) (*store.ChatMessage, error) {
	fields := []string{"conversation_id", "role", "content", "is_first_mes", "created_ts"}
	args := []any{create.ConversationID, string(create.Role), create.Content, create.IsFirstMes, create.CreatedTs}
	stmt := `INSERT INTO chat_message (` + strings.Join(fields, ", ") + `) VALUES (` + placeholders(len(args)) + `) RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create chat_message")
	}
	return create, nil
}

func (d *DB) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *find.ConversationID)
	}

	query := `SELECT id, conversation_id, role, content, is_first_mes, created_ts FROM chat_message WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chat_messages")
	}
	defer rows.Close()

	list := make([]*store.ChatMessage, 0)
	for rows.Next() {
		m := &store.ChatMessage{}
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.IsFirstMes, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat_message")
		}
		m.Role = store.ChatMessageRole(role)
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate chat_messages")
	}
	return list, nil
}

func (d *DB) UpdateChatMessage(ctx context.Context, update *store.UpdateChatMessage) (*store.ChatMessage, error) {
	if update.Content == nil {
		return nil, errors.New("no fields to update")
	}
	stmt := `UPDATE chat_message SET content = ` + placeholder(1) + ` WHERE id = ` + placeholder(2) + ` RETURNING id, conversation_id, role, content, is_first_mes, created_ts`
	m := &store.ChatMessage{}
	var role string
	if err := d.db.QueryRowContext(ctx, stmt, *update.Content, update.ID).Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.IsFirstMes, &m.CreatedTs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(store.ErrNotFound, "chat_message %d", update.ID)
		}
		return nil, errors.Wrap(err, "failed to update chat_message")
	}
	m.Role = store.ChatMessageRole(role)
	return m, nil
}

func (d *DB) DeleteChatMessage(ctx context.Context, delete *store.DeleteChatMessage) (int64, error) {
	where, args := []string{}, []any{}

	if delete.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *delete.ID)
	}
	if delete.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *delete.ConversationID)
	}
	if delete.AfterID != nil {
		if delete.ConversationID == nil {
			return 0, errors.New("after id requires a conversation id")
		}
		where, args = append(where, "id > "+placeholder(len(args)+1)), append(args, *delete.AfterID)
	}
	if len(where) == 0 {
		return 0, errors.New("no condition to delete")
	}

	result, err := d.db.ExecContext(ctx, `DELETE FROM chat_message WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete chat_message")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted chat_messages")
	}
	return rows, nil
}

func (d *DB) TruncateChatMessage(ctx context.Context, update *store.UpdateChatMessage) (int64, error) {
	if update.Content == nil {
		return 0, errors.New("no fields to update")
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	var conversationID string
	stmt := `UPDATE chat_message SET content = ` + placeholder(1) + ` WHERE id = ` + placeholder(2) + ` RETURNING conversation_id`
	if err := tx.QueryRowContext(ctx, stmt, *update.Content, update.ID).Scan(&conversationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.Wrapf(store.ErrNotFound, "chat_message %d", update.ID)
		}
		return 0, errors.Wrap(err, "failed to update chat_message")
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM chat_message WHERE conversation_id = `+placeholder(1)+` AND id > `+placeholder(2), conversationID, update.ID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to truncate chat_message")
	}
	dropped, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted chat_messages")
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit transaction")
	}
	return dropped, nil
}
