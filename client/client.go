package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shaiso/Conveyor/model"
)

const defaultHTTPTimeout = 90 * time.Second

// Config — конфигурация Client.
type Config struct {
	// BaseURL — адрес API оркестрационного сервера.
	BaseURL string

	// KeyID / KeySecret — ключи для получения access token.
	// Если пустые — запросы идут без аутентификации.
	KeyID     string
	KeySecret string

	// Timeout — таймаут одного HTTP-запроса (default: 90s,
	// должен превышать poll timeout long poll'а).
	Timeout time.Duration

	// RetryPolicy — политика auth-retry (опционально; если nil —
	// создаётся с конфигурацией по умолчанию).
	RetryPolicy *AuthRetryPolicy

	// Logger.
	Logger *slog.Logger
}

// Client — HTTP-клиент оркестрационного сервера.
type Client struct {
	http   *resty.Client
	tokens *TokenManager
	policy *AuthRetryPolicy
	logger *slog.Logger
}

// PollOptions — параметры batch-poll.
type PollOptions struct {
	// WorkerID — идентификатор worker'а.
	WorkerID string

	// Domain — логический раздел очереди.
	Domain string

	// Count — максимум task'ов за один poll.
	Count int

	// Timeout — long-poll таймаут на стороне сервера.
	Timeout time.Duration
}

// WorkflowState — состояние workflow, возвращаемое синхронным update.
type WorkflowState struct {
	// WorkflowID — идентификатор workflow.
	WorkflowID string `json:"workflowId"`

	// Status — текущий статус workflow.
	Status string `json:"status"`

	// Output — выходные данные workflow (если завершён).
	Output map[string]any `json:"output,omitempty"`
}

// New создаёт Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy := cfg.RetryPolicy
	if policy == nil {
		policy = NewAuthRetryPolicy(AuthRetryConfig{})
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	c := &Client{
		http:   httpClient,
		policy: policy,
		logger: logger,
	}

	if cfg.KeyID != "" && cfg.KeySecret != "" {
		c.tokens = NewTokenManager(httpClient, cfg.KeyID, cfg.KeySecret, logger)

		// Подставляем token во все запросы, кроме token-эндпоинта
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			if req.URL == tokenPath {
				return nil
			}
			token, err := c.tokens.Token(req.Context())
			if err != nil {
				return err
			}
			req.SetHeader("X-Authorization", token)
			return nil
		})
	}

	return c
}

// RetryPolicy возвращает политику auth-retry клиента.
// Runtime проверяет через неё, не перешёл ли эндпоинт в STOPPED.
func (c *Client) RetryPolicy() *AuthRetryPolicy {
	return c.policy
}

// PollTasks запрашивает batch task'ов указанного типа.
// Пустой результат — норма (работы нет), не ошибка.
func (c *Client) PollTasks(ctx context.Context, taskType string, opts PollOptions) ([]model.Task, error) {
	endpoint := "/tasks/poll/batch/" + taskType

	resp, err := c.execute(ctx, endpoint, func(ctx context.Context) (*resty.Response, error) {
		req := c.http.R().SetContext(ctx)
		if opts.WorkerID != "" {
			req.SetQueryParam("workerid", opts.WorkerID)
		}
		if opts.Domain != "" {
			req.SetQueryParam("domain", opts.Domain)
		}
		if opts.Count > 0 {
			req.SetQueryParam("count", strconv.Itoa(opts.Count))
		}
		if opts.Timeout > 0 {
			req.SetQueryParam("timeout", strconv.FormatInt(opts.Timeout.Milliseconds(), 10))
		}
		return req.Get(endpoint)
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusNoContent || len(resp.Body()) == 0 {
		return nil, nil
	}

	var tasks []model.Task
	if err := json.Unmarshal(resp.Body(), &tasks); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}
	return tasks, nil
}

// UpdateTask отправляет результат выполнения task.
// Возвращает ack сервера.
func (c *Client) UpdateTask(ctx context.Context, result *model.TaskResult) (string, error) {
	const endpoint = "/tasks"

	resp, err := c.execute(ctx, endpoint, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(result).
			Post(endpoint)
	})
	if err != nil {
		return "", err
	}

	return resp.String(), nil
}

// UpdateTaskSync отправляет результат и возвращает текущее
// состояние workflow.
func (c *Client) UpdateTaskSync(ctx context.Context, result *model.TaskResult) (*WorkflowState, error) {
	const endpoint = "/tasks/sync"

	resp, err := c.execute(ctx, endpoint, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(result).
			Post(endpoint)
	})
	if err != nil {
		return nil, err
	}

	var state WorkflowState
	if err := json.Unmarshal(resp.Body(), &state); err != nil {
		return nil, fmt.Errorf("decode workflow state: %w", err)
	}
	return &state, nil
}

// RegisterTaskDef регистрирует определения task'ов на сервере.
func (c *Client) RegisterTaskDef(ctx context.Context, defs ...model.TaskDef) error {
	const endpoint = "/metadata/taskdefs"

	_, err := c.execute(ctx, endpoint, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(defs).
			Post(endpoint)
	})
	return err
}

// execute выполняет запрос с политикой auth-retry.
//
// 401 на auth-зависимом пути: принудительное обновление token,
// backoff-задержка, повтор — пока политика не скажет STOPPED.
// Остальные ошибки возвращаются сразу как APIError.
func (c *Client) execute(ctx context.Context, endpoint string, send func(ctx context.Context) (*resty.Response, error)) (*resty.Response, error) {
	for {
		resp, err := send(ctx)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", endpoint, err)
		}

		code := resp.StatusCode()
		if code < 400 {
			c.policy.OnSuccess(endpoint)
			return resp, nil
		}

		// Только 401 на auth-зависимом пути проходит через политику:
		// 403/4xx/5xx и 401 на token-эндпоинте — сразу наружу
		if code != http.StatusUnauthorized || !IsAuthDependent(endpoint) {
			return nil, &APIError{
				StatusCode: code,
				Endpoint:   endpoint,
				Body:       truncate(resp.String(), 200),
			}
		}

		delay, retry := c.policy.OnUnauthorized(endpoint)
		if !retry {
			c.logger.Error("auth retry budget exhausted",
				"endpoint", endpoint,
				"attempts", c.policy.Attempts(endpoint),
			)
			return nil, fmt.Errorf("%w: %s", ErrAuthRetriesExhausted, endpoint)
		}

		c.logger.Warn("unauthorized response, will refresh token and retry",
			"endpoint", endpoint,
			"attempt", c.policy.Attempts(endpoint),
			"delay", delay,
		)

		// Ждём backoff с учётом context
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		// Принудительно обновляем token перед повтором
		if c.tokens != nil {
			if _, err := c.tokens.Refresh(ctx); err != nil {
				return nil, err
			}
		}
	}
}
