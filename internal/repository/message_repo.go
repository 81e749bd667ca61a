package repository

import (
	"context"

	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
)

const messageColumns = `id, conversation_id, sender_id, content, is_system, offer_id, is_read, created_at`

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(
	ctx context.Context,
	conversationID int64,
	senderID int64,
	content string,
) (*models.ChatMessage, error) {
	query := `
		INSERT INTO messages (conversation_id, sender_id, content, is_system, is_read)
		VALUES ($1, $2, $3, FALSE, FALSE)
		RETURNING ` + messageColumns
	return r.scanOne(r.db.QueryRow(ctx, query, conversationID, senderID, content))
}

// CreateSystem posts an announcement with no sender (offer accepted,
// contract renewed, chat closed).
func (r *MessageRepository) CreateSystem(
	ctx context.Context,
	conversationID int64,
	content string,
) (*models.ChatMessage, error) {
	query := `
		INSERT INTO messages (conversation_id, sender_id, content, is_system, is_read)
		VALUES ($1, NULL, $2, TRUE, FALSE)
		RETURNING ` + messageColumns
	return r.scanOne(r.db.QueryRow(ctx, query, conversationID, content))
}

// CreateOfferCard posts the chat message that renders an offer.
func (r *MessageRepository) CreateOfferCard(
	ctx context.Context,
	conversationID int64,
	senderID int64,
	content string,
	offerID int64,
) (*models.ChatMessage, error) {
	query := `
		INSERT INTO messages (conversation_id, sender_id, content, is_system, offer_id, is_read)
		VALUES ($1, $2, $3, FALSE, $4, FALSE)
		RETURNING ` + messageColumns
	return r.scanOne(r.db.QueryRow(ctx, query, conversationID, senderID, content, offerID))
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID int64) (*models.ChatMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, messageID))
}

// Delete is idempotent: deleting an already-removed message is not an error.
func (r *MessageRepository) Delete(ctx context.Context, messageID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	return err
}

func (r *MessageRepository) ListByConversation(
	ctx context.Context,
	conversationID int64,
	limit int,
	offset int,
) ([]models.ChatMessage, int, error) {
	totalQuery := `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1
	`

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, conversationID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var message models.ChatMessage
		if err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.SenderID,
			&message.Content,
			&message.IsSystem,
			&message.OfferID,
			&message.IsRead,
			&message.CreatedAt,
		); err != nil {
			return nil, 0, err
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

func (r *MessageRepository) MarkMessagesRead(
	ctx context.Context,
	messageIDs []int64,
	readerID int64,
) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE
		WHERE id = ANY($1)
		  AND (sender_id IS NULL OR sender_id <> $2)
		  AND is_read = FALSE
	`, messageIDs, readerID)
	return err
}

func (r *MessageRepository) scanOne(row interface{ Scan(dest ...any) error }) (*models.ChatMessage, error) {
	var message models.ChatMessage
	err := row.Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.Content,
		&message.IsSystem,
		&message.OfferID,
		&message.IsRead,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &message, nil
}
