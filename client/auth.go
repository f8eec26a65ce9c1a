package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"
)

// tokenPath — эндпоинт выдачи access token.
// 401 на нём означает неверные ключи, а не протухший token,
// поэтому он исключён из AuthRetryPolicy.
const tokenPath = "/token"

// tokenRequest — тело запроса token-эндпоинта.
type tokenRequest struct {
	KeyID     string `json:"keyId"`
	KeySecret string `json:"keySecret"`
}

// tokenResponse — ответ token-эндпоинта.
type tokenResponse struct {
	Token string `json:"token"`
}

// TokenManager получает и кэширует access token.
//
// Token запрашивается лениво при первом вызове и далее
// переиспользуется. Refresh принудительно получает новый token —
// его вызывает Client перед повтором запроса после 401.
type TokenManager struct {
	http      *resty.Client
	keyID     string
	keySecret string
	logger    *slog.Logger

	mu    sync.Mutex
	token string
}

// NewTokenManager создаёт TokenManager поверх готового resty-клиента.
func NewTokenManager(httpClient *resty.Client, keyID, keySecret string, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenManager{
		http:      httpClient,
		keyID:     keyID,
		keySecret: keySecret,
		logger:    logger,
	}
}

// Token возвращает кэшированный token или запрашивает новый.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" {
		return m.token, nil
	}
	return m.fetch(ctx)
}

// Refresh принудительно запрашивает новый token, сбрасывая кэш.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = ""
	return m.fetch(ctx)
}

// fetch выполняет запрос к token-эндпоинту. Вызывается под mu.
func (m *TokenManager) fetch(ctx context.Context) (string, error) {
	var body tokenResponse

	resp, err := m.http.R().
		SetContext(ctx).
		SetBody(tokenRequest{KeyID: m.keyID, KeySecret: m.keySecret}).
		SetResult(&body).
		Post(tokenPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRequest, err)
	}

	// Ошибки token-эндпоинта (включая 401) возвращаются сразу,
	// без участия AuthRetryPolicy
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("%w: %v", ErrTokenRequest, &APIError{
			StatusCode: resp.StatusCode(),
			Endpoint:   tokenPath,
			Body:       truncate(resp.String(), 200),
		})
	}

	if body.Token == "" {
		return "", fmt.Errorf("%w: empty token in response", ErrTokenRequest)
	}

	m.token = body.Token
	m.logger.Debug("access token obtained")

	return m.token, nil
}
