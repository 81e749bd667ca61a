package services

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/repository"
)

var ErrConversationNotFound = errors.New("conversation not found")

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 100
)

type profileReader interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Profile, error)
}

type ChatService struct {
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	profileRepo      profileReader
}

func NewChatService(
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	profileRepo profileReader,
) *ChatService {
	return &ChatService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		profileRepo:      profileRepo,
	}
}

func (s *ChatService) ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	return s.conversationRepo.ListForParticipant(ctx, userID)
}

// CreateConversation opens (or returns) the chat between a customer and the
// coach they are linked to. A customer cannot open chats with arbitrary
// coaches; the link on the profile is the authorization.
func (s *ChatService) CreateConversation(ctx context.Context, customerID, coachID int64) (*models.Conversation, error) {
	if customerID <= 0 || coachID <= 0 || customerID == coachID {
		return nil, ErrInvalidInput
	}

	profile, err := s.profileRepo.GetByUserID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if profile.CoachID == nil || *profile.CoachID != coachID {
		return nil, ErrForbidden
	}

	return s.conversationRepo.CreateOrGet(ctx, customerID, coachID)
}

func (s *ChatService) GetConversation(ctx context.Context, userID, conversationID int64) (*models.Conversation, error) {
	conversation, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conversation, nil
}

type MessagePage struct {
	Messages []models.ChatMessage  `json:"messages"`
	Meta     models.PaginationMeta `json:"meta"`
}

// ListMessages returns one page newest-first and marks the returned messages
// read for the caller. Marking is best-effort relative to the read.
func (s *ChatService) ListMessages(ctx context.Context, userID, conversationID int64, page, limit int) (*MessagePage, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultMessagePageSize
	}
	if limit > maxMessagePageSize {
		limit = maxMessagePageSize
	}

	messages, total, err := s.messageRepo.ListByConversation(ctx, conversationID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	unreadIDs := make([]int64, 0, len(messages))
	for _, message := range messages {
		if message.IsRead {
			continue
		}
		if message.SenderID == nil || *message.SenderID != userID {
			unreadIDs = append(unreadIDs, message.ID)
		}
	}
	if err := s.messageRepo.MarkMessagesRead(ctx, unreadIDs, userID); err != nil {
		return nil, err
	}

	totalPages := (total + limit - 1) / limit
	return &MessagePage{
		Messages: messages,
		Meta: models.PaginationMeta{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

func (s *ChatService) SendMessage(ctx context.Context, userID, conversationID int64, content string) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrInvalidInput
	}

	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	message, err := s.messageRepo.Create(ctx, conversationID, userID, content)
	if err != nil {
		return nil, err
	}

	if err := s.conversationRepo.Touch(ctx, conversationID); err != nil {
		return nil, err
	}

	return message, nil
}

// ChatDelivery pairs a stored message with the party the realtime layer
// should push it to.
type ChatDelivery struct {
	Message     *models.ChatMessage
	RecipientID int64
}

func (s *ChatService) DeliverMessage(ctx context.Context, userID, conversationID int64, content string) (*ChatDelivery, error) {
	conversation, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	message, err := s.SendMessage(ctx, userID, conversationID, content)
	if err != nil {
		return nil, err
	}

	recipientID := conversation.CustomerID
	if userID == conversation.CustomerID {
		recipientID = conversation.CoachID
	}

	return &ChatDelivery{Message: message, RecipientID: recipientID}, nil
}

// AnnounceSystem drops a system message into the pair's conversation,
// creating it if the two never chatted. Settlement and the sweep use this
// for their lifecycle notices.
func (s *ChatService) AnnounceSystem(ctx context.Context, customerID, coachID int64, content string) error {
	conversation, err := s.conversationRepo.CreateOrGet(ctx, customerID, coachID)
	if err != nil {
		return err
	}
	if _, err := s.messageRepo.CreateSystem(ctx, conversation.ID, content); err != nil {
		return err
	}
	return s.conversationRepo.Touch(ctx, conversation.ID)
}
