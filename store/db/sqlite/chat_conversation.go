package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/AliceSyndrome285/CradleAI/store"
)

func (d *DB) CreateChatConversation(ctx context.Context, create *store.ChatConversation) (*store.ChatConversation, error) {
	fields := []string{"id", "character_id", "title", "created_ts", "updated_ts"}
	args := []any{create.ID, create.CharacterID, create.Title, create.CreatedTs, create.UpdatedTs}
	stmt := `INSERT INTO chat_conversation (` + strings.Join(fields, ", ") + `) VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create chat_conversation")
	}
	return create, nil
}

func (d *DB) ListChatConversations(ctx context.Context, find *store.FindChatConversation) ([]*store.ChatConversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.CharacterID != nil {
		where, args = append(where, "character_id = "+placeholder(len(args)+1)), append(args, *find.CharacterID)
	}

	query := `SELECT id, character_id, title, created_ts, updated_ts FROM chat_conversation WHERE ` + strings.Join(where, " AND ") + ` ORDER BY updated_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chat_conversations")
	}
	defer rows.Close()

	list := make([]*store.ChatConversation, 0)
	for rows.Next() {
		c := &store.ChatConversation{}
		if err := rows.Scan(&c.ID, &c.CharacterID, &c.Title, &c.CreatedTs, &c.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat_conversation")
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate chat_conversations")
	}
	return list, nil
}

func (d *DB) UpdateChatConversation(ctx context.Context, update *store.UpdateChatConversation) (*store.ChatConversation, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE chat_conversation SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` RETURNING id, character_id, title, created_ts, updated_ts`
	c := &store.ChatConversation{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&c.ID, &c.CharacterID, &c.Title, &c.CreatedTs, &c.UpdatedTs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(store.ErrNotFound, "chat_conversation %s", update.ID)
		}
		return nil, errors.Wrap(err, "failed to update chat_conversation")
	}
	return c, nil
}

func (d *DB) DeleteChatConversation(ctx context.Context, delete *store.DeleteChatConversation) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM chat_message WHERE conversation_id = `+placeholder(1), delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete chat_messages")
	}
	result, err := d.db.ExecContext(ctx, `DELETE FROM chat_conversation WHERE id = `+placeholder(1), delete.ID)
	if err != nil {
		return errors.Wrap(err, "failed to delete chat_conversation")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "chat_conversation %s", delete.ID)
	}
	return nil
}
