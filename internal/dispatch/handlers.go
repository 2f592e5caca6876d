package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
)

// PostStore — доступ к постам для publish-handler'а.
type PostStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Post, error)
	Update(ctx context.Context, post *domain.Post) error
}

// PostPublisher публикует подготовленный пост на внешней площадке.
type PostPublisher interface {
	PublishPost(ctx context.Context, post *domain.Post) (externalID string, err error)
}

// PublishPostHandler публикует пост, указанный в payload.post_id.
//
// Отсутствующий или уже опубликованный пост — доменный отказ
// (SoftFailure), а не повод для retry.
type PublishPostHandler struct {
	Posts  PostStore
	Client PostPublisher
	Now    func() time.Time
}

// Execute выполняет публикацию.
func (h *PublishPostHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	postID, ok := payloadUUID(action.Payload, "post_id")
	if !ok {
		return SoftFailure(map[string]any{"status": "missing_post_id"}), nil
	}

	post, err := h.Posts.GetByID(ctx, postID)
	if err != nil {
		if isNotFound(err) {
			return SoftFailure(map[string]any{
				"status":  "missing_post",
				"post_id": postID.String(),
			}), nil
		}
		return nil, fmt.Errorf("load post: %w", err)
	}

	if post.Status == domain.PostStatusPublished {
		return SoftFailure(map[string]any{
			"status":      "already_published",
			"post_id":     postID.String(),
			"external_id": post.ExternalID,
		}), nil
	}
	if !post.HasMedia() {
		return SoftFailure(map[string]any{
			"status":  "missing_media",
			"post_id": postID.String(),
		}), nil
	}

	externalID, err := h.Client.PublishPost(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("publish post: %w", err)
	}

	post.Status = domain.PostStatusPublished
	post.ExternalID = externalID
	if err := h.Posts.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}

	return Success(map[string]any{
		"status":      "published",
		"post_id":     postID.String(),
		"external_id": externalID,
	}), nil
}

// QnAPublisher публикует вопрос-ответ на внешней площадке.
type QnAPublisher interface {
	PublishQnA(ctx context.Context, tenantID, locationID uuid.UUID, question, answer string) error
}

// PublishQnAHandler публикует Q&A из payload.
type PublishQnAHandler struct {
	Client QnAPublisher
}

// Execute выполняет публикацию Q&A.
func (h *PublishQnAHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	if action.LocationID == nil {
		return SoftFailure(map[string]any{"status": "missing_location"}), nil
	}
	question, ok := payloadString(action.Payload, "question")
	if !ok || question == "" {
		return SoftFailure(map[string]any{"status": "missing_question"}), nil
	}
	answer, _ := payloadString(action.Payload, "answer")

	if err := h.Client.PublishQnA(ctx, action.TenantID, *action.LocationID, question, answer); err != nil {
		return nil, fmt.Errorf("publish qna: %w", err)
	}
	return Success(map[string]any{"status": "published"}), nil
}

// TokenRefresher обновляет OAuth-токен внешнего аккаунта.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, accountID uuid.UUID) error
}

// RefreshTokenHandler обновляет токен аккаунта из action.account_id.
type RefreshTokenHandler struct {
	Accounts TokenRefresher
}

// Execute выполняет обновление токена.
func (h *RefreshTokenHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	if action.AccountID == nil {
		return SoftFailure(map[string]any{"status": "missing_account"}), nil
	}
	if err := h.Accounts.RefreshToken(ctx, *action.AccountID); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return Success(map[string]any{
		"status":     "refreshed",
		"account_id": action.AccountID.String(),
	}), nil
}

// MediaRequester отправляет клиенту запрос на загрузку материалов.
type MediaRequester interface {
	RequestMediaUpload(ctx context.Context, tenantID, locationID uuid.UUID) error
}

// RequestMediaUploadHandler просит клиента загрузить фото для локации.
type RequestMediaUploadHandler struct {
	Notifier MediaRequester
}

// Execute отправляет запрос на материалы.
func (h *RequestMediaUploadHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	if action.LocationID == nil {
		return SoftFailure(map[string]any{"status": "missing_location"}), nil
	}
	if err := h.Notifier.RequestMediaUpload(ctx, action.TenantID, *action.LocationID); err != nil {
		return nil, fmt.Errorf("request media upload: %w", err)
	}
	return Success(map[string]any{"status": "requested"}), nil
}

// payloadUUID извлекает UUID из payload по ключу.
func payloadUUID(payload map[string]any, key string) (uuid.UUID, bool) {
	raw, ok := payloadString(payload, key)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// payloadString извлекает строку из payload по ключу.
func payloadString(payload map[string]any, key string) (string, bool) {
	if payload == nil {
		return "", false
	}
	raw, ok := payload[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

// payloadTime извлекает время в формате RFC3339 из payload по ключу.
func payloadTime(payload map[string]any, key string) (time.Time, bool) {
	raw, ok := payloadString(payload, key)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
