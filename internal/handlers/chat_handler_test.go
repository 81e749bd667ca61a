package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/services"
	chatws "github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/websocket"
)

type stubChatService struct {
	conversationsResult []models.ConversationSummary
	conversationsErr    error
	createResult        *models.Conversation
	createErr           error
	messagesResult      *services.MessagePage
	messagesErr         error
	sendResult          *models.ChatMessage
	sendErr             error
	lastUserID          int64
	lastCoachID         int64
	lastConversationID  int64
	lastPage            int
	lastLimit           int
	lastContent         string
}

func (s *stubChatService) ListConversations(_ context.Context, userID int64) ([]models.ConversationSummary, error) {
	s.lastUserID = userID
	return s.conversationsResult, s.conversationsErr
}

func (s *stubChatService) CreateConversation(_ context.Context, customerID, coachID int64) (*models.Conversation, error) {
	s.lastUserID = customerID
	s.lastCoachID = coachID
	return s.createResult, s.createErr
}

func (s *stubChatService) ListMessages(_ context.Context, userID, conversationID int64, page, limit int) (*services.MessagePage, error) {
	s.lastUserID = userID
	s.lastConversationID = conversationID
	s.lastPage = page
	s.lastLimit = limit
	return s.messagesResult, s.messagesErr
}

func (s *stubChatService) SendMessage(_ context.Context, userID, conversationID int64, content string) (*models.ChatMessage, error) {
	s.lastUserID = userID
	s.lastConversationID = conversationID
	s.lastContent = content
	return s.sendResult, s.sendErr
}

func (s *stubChatService) DeliverMessage(_ context.Context, _, _ int64, _ string) (*services.ChatDelivery, error) {
	return nil, nil
}

func newChatTestApp(service *stubChatService, role, userID string) (*fiber.App, *ChatHandler) {
	handler := NewChatHandler(service, chatws.NewHub(), "secret")
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", role)
		c.Locals("user_id", userID)
		return c.Next()
	})
	return app, handler
}

func TestListConversationsReturnsConversationSummaries(t *testing.T) {
	service := &stubChatService{
		conversationsResult: []models.ConversationSummary{
			{
				Conversation: models.Conversation{ID: 17, CustomerID: 42, CoachID: 8},
				LastMessage: &models.ChatMessage{
					ID:             3,
					ConversationID: 17,
					Content:        "See you tomorrow",
					CreatedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
				},
				UnreadCount: 2,
			},
		},
	}
	app, handler := newChatTestApp(service, "customer", "42")
	app.Get("/api/v1/conversations", handler.ListConversations)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastUserID != 42 {
		t.Fatalf("expected user 42, got %d", service.lastUserID)
	}

	var body struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Conversations) != 1 || body.Conversations[0].UnreadCount != 2 {
		t.Fatalf("unexpected response: %+v", body.Conversations)
	}
}

func TestCreateConversationReturnsCreatedConversation(t *testing.T) {
	service := &stubChatService{
		createResult: &models.Conversation{ID: 9, CustomerID: 42, CoachID: 7},
	}
	app, handler := newChatTestApp(service, "customer", "42")
	app.Post("/api/v1/conversations", handler.CreateConversation)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations", strings.NewReader(`{"coach_id":7}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastCoachID != 7 {
		t.Fatalf("expected coach id 7, got %d", service.lastCoachID)
	}
}

func TestCreateConversationRejectsCoaches(t *testing.T) {
	service := &stubChatService{}
	app, handler := newChatTestApp(service, "coach", "7")
	app.Post("/api/v1/conversations", handler.CreateConversation)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations", strings.NewReader(`{"coach_id":7}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestGetMessagesReturnsPagination(t *testing.T) {
	service := &stubChatService{
		messagesResult: &services.MessagePage{
			Messages: []models.ChatMessage{
				{ID: 5, ConversationID: 11, Content: "Hi", CreatedAt: time.Now().UTC()},
			},
			Meta: models.PaginationMeta{Page: 2, Limit: 5, Total: 12, TotalPages: 3},
		},
	}
	app, handler := newChatTestApp(service, "coach", "7")
	app.Get("/api/v1/conversations/:id/messages", handler.GetMessages)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/11/messages?page=2&limit=5", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastConversationID != 11 || service.lastPage != 2 || service.lastLimit != 5 {
		t.Fatalf("unexpected forwarded pagination: conversation=%d page=%d limit=%d", service.lastConversationID, service.lastPage, service.lastLimit)
	}

	var body struct {
		Messages   []models.ChatMessage  `json:"messages"`
		Pagination models.PaginationMeta `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Messages) != 1 || body.Pagination.Total != 12 || body.Pagination.TotalPages != 3 {
		t.Fatalf("unexpected response body: %+v %+v", body.Messages, body.Pagination)
	}
}

func TestGetMessagesCapsLimit(t *testing.T) {
	service := &stubChatService{
		messagesResult: &services.MessagePage{},
	}
	app, handler := newChatTestApp(service, "customer", "42")
	app.Get("/api/v1/conversations/:id/messages", handler.GetMessages)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/11/messages?limit=500", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if service.lastLimit != maxPageLimit {
		t.Fatalf("expected limit capped at %d, got %d", maxPageLimit, service.lastLimit)
	}
}

func TestGetMessagesReturnsNotFound(t *testing.T) {
	service := &stubChatService{messagesErr: pgx.ErrNoRows}
	app, handler := newChatTestApp(service, "coach", "7")
	app.Get("/api/v1/conversations/:id/messages", handler.GetMessages)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/99/messages", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSendMessageReturnsCreatedMessage(t *testing.T) {
	service := &stubChatService{
		sendResult: &models.ChatMessage{ID: 21, ConversationID: 11, Content: "On my way"},
	}
	app, handler := newChatTestApp(service, "customer", "42")
	app.Post("/api/v1/conversations/:id/messages", handler.SendMessage)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/11/messages", strings.NewReader(`{"content":"On my way"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastConversationID != 11 || service.lastContent != "On my way" {
		t.Fatalf("unexpected forwarded message: conversation=%d content=%q", service.lastConversationID, service.lastContent)
	}
}

func TestSendMessageRejectsForbidden(t *testing.T) {
	service := &stubChatService{sendErr: services.ErrForbidden}
	app, handler := newChatTestApp(service, "customer", "42")
	app.Post("/api/v1/conversations/:id/messages", handler.SendMessage)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/11/messages", strings.NewReader(`{"content":"hey"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}
