package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Client — HTTP-клиент шлюза внешней площадки.
//
// Все взаимодействия с площадкой (публикация постов и Q&A,
// синхронизация локаций/отзывов/постов, позиции, конкуренты,
// обновление OAuth-токенов, уведомления клиентам) идут через
// единый gateway-сервис; Client реализует интерфейсы исполнителей
// из пакета dispatch.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиент шлюза.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// --- Публикация ---

type publishPostRequest struct {
	TenantID   string `json:"tenant_id"`
	LocationID string `json:"location_id"`
	Bucket     string `json:"bucket"`
	Body       string `json:"body"`
	MediaRef   string `json:"media_ref,omitempty"`
}

type publishPostResponse struct {
	ExternalID string `json:"external_id"`
}

// PublishPost публикует пост и возвращает внешний идентификатор.
func (c *Client) PublishPost(ctx context.Context, post *domain.Post) (string, error) {
	req := publishPostRequest{
		TenantID:   post.TenantID.String(),
		LocationID: post.LocationID.String(),
		Bucket:     post.Bucket,
		Body:       post.Body,
		MediaRef:   post.MediaRef,
	}
	var resp publishPostResponse
	if err := c.post(ctx, "/v1/posts", req, &resp); err != nil {
		return "", err
	}
	return resp.ExternalID, nil
}

type publishQnARequest struct {
	TenantID   string `json:"tenant_id"`
	LocationID string `json:"location_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer,omitempty"`
}

// PublishQnA публикует вопрос-ответ для локации.
func (c *Client) PublishQnA(ctx context.Context, tenantID, locationID uuid.UUID, question, answer string) error {
	req := publishQnARequest{
		TenantID:   tenantID.String(),
		LocationID: locationID.String(),
		Question:   question,
		Answer:     answer,
	}
	return c.post(ctx, "/v1/qna", req, nil)
}

// --- Синхронизация ---

type syncRequest struct {
	TenantID   string `json:"tenant_id"`
	LocationID string `json:"location_id,omitempty"`
}

type syncResponse struct {
	Synced int `json:"synced"`
}

// SyncLocations подтягивает локации tenant'а с площадки.
func (c *Client) SyncLocations(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return c.sync(ctx, "/v1/sync/locations", tenantID, nil)
}

// SyncReviews подтягивает отзывы.
func (c *Client) SyncReviews(ctx context.Context, tenantID uuid.UUID, locationID *uuid.UUID) (int, error) {
	return c.sync(ctx, "/v1/sync/reviews", tenantID, locationID)
}

// SyncPosts подтягивает опубликованные посты.
func (c *Client) SyncPosts(ctx context.Context, tenantID uuid.UUID, locationID *uuid.UUID) (int, error) {
	return c.sync(ctx, "/v1/sync/posts", tenantID, locationID)
}

func (c *Client) sync(ctx context.Context, path string, tenantID uuid.UUID, locationID *uuid.UUID) (int, error) {
	req := syncRequest{TenantID: tenantID.String()}
	if locationID != nil {
		req.LocationID = locationID.String()
	}
	var resp syncResponse
	if err := c.post(ctx, path, req, &resp); err != nil {
		return 0, err
	}
	return resp.Synced, nil
}

// --- Аналитика ---

// FetchRankings снимает позиции локации в выдаче площадки.
func (c *Client) FetchRankings(ctx context.Context, tenantID, locationID uuid.UUID) (map[string]any, error) {
	path := fmt.Sprintf("/v1/locations/%s/rankings?tenant_id=%s", locationID, tenantID)
	var resp map[string]any
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// FetchCompetitors снимает данные конкурентов локации.
func (c *Client) FetchCompetitors(ctx context.Context, tenantID, locationID uuid.UUID) (map[string]any, error) {
	path := fmt.Sprintf("/v1/locations/%s/competitors?tenant_id=%s", locationID, tenantID)
	var resp map[string]any
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

type computeSignalsRequest struct {
	TenantID string `json:"tenant_id"`
	Day      string `json:"day"`
}

type computeSignalsResponse struct {
	Signals int `json:"signals"`
}

// ComputeDaily запускает на шлюзе агрегацию дневных сигналов
// tenant'а (отзывы, позиции, охваты) и возвращает их число.
func (c *Client) ComputeDaily(ctx context.Context, tenantID uuid.UUID, day time.Time) (int, error) {
	req := computeSignalsRequest{
		TenantID: tenantID.String(),
		Day:      day.UTC().Format("2006-01-02"),
	}
	var resp computeSignalsResponse
	if err := c.post(ctx, "/v1/signals/compute", req, &resp); err != nil {
		return 0, err
	}
	return resp.Signals, nil
}

// --- Аккаунты и уведомления ---

// RefreshToken обновляет OAuth-токен внешнего аккаунта.
func (c *Client) RefreshToken(ctx context.Context, accountID uuid.UUID) error {
	return c.post(ctx, fmt.Sprintf("/v1/accounts/%s/refresh", accountID), nil, nil)
}

type mediaRequestRequest struct {
	TenantID   string `json:"tenant_id"`
	LocationID string `json:"location_id"`
}

// RequestMediaUpload отправляет клиенту запрос на загрузку материалов.
func (c *Client) RequestMediaUpload(ctx context.Context, tenantID, locationID uuid.UUID) error {
	req := mediaRequestRequest{
		TenantID:   tenantID.String(),
		LocationID: locationID.String(),
	}
	return c.post(ctx, "/v1/notifications/media-request", req, nil)
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &GatewayError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
