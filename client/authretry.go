package client

import (
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Значения по умолчанию для AuthRetryConfig.
const (
	defaultMaxAttempts   = 6
	defaultBaseDelay     = time.Second
	defaultMaxDelay      = 60 * time.Second
	defaultJitterPercent = 0.2
)

// authResourcePrefixes — префиксы путей, 401 на которых означает
// протухший token (auth-зависимые вызовы). Token-эндпоинт исключён.
var authResourcePrefixes = []string{
	"/tasks",
	"/workflow",
	"/metadata",
	"/event",
	"/queue",
}

// PolicyState — состояние политики для одного эндпоинта.
type PolicyState string

const (
	// StateHealthy — ошибок auth не было (attempt_count = 0).
	StateHealthy PolicyState = "HEALTHY"

	// StateRetrying — идут повторные попытки.
	StateRetrying PolicyState = "RETRYING"

	// StateStopped — попытки исчерпаны, вызовы к эндпоинту прекращаются.
	StateStopped PolicyState = "STOPPED"
)

// AuthRetryConfig — конфигурация AuthRetryPolicy.
type AuthRetryConfig struct {
	// MaxAttempts — максимум последовательных 401 до STOPPED (default: 6).
	MaxAttempts int

	// BaseDelay — базовая задержка exponential backoff (default: 1s).
	BaseDelay time.Duration

	// MaxDelay — верхняя граница задержки (default: 60s).
	MaxDelay time.Duration

	// JitterPercent — доля случайного разброса задержки (default: 0.2).
	JitterPercent float64
}

// AuthRetryPolicy решает, повторять ли запрос после 401.
//
// Состояние ведётся отдельно для каждого эндпоинта:
//
//	HEALTHY → RETRYING (401 на auth-зависимом пути)
//	RETRYING → STOPPED (attempt_count достиг MaxAttempts)
//	любое → HEALTHY (успешный вызов эндпоинта)
//
// Политика только советует: сам HTTP-вызов и обновление token
// выполняет Client. Все методы потокобезопасны.
type AuthRetryPolicy struct {
	cfg AuthRetryConfig

	mu        sync.Mutex
	endpoints map[string]*endpointState
}

// endpointState — счётчик попыток одного эндпоинта.
type endpointState struct {
	attempts    int
	backoff     *backoff.ExponentialBackOff
	lastSuccess time.Time
}

// NewAuthRetryPolicy создаёт политику с указанной конфигурацией.
func NewAuthRetryPolicy(cfg AuthRetryConfig) *AuthRetryPolicy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.JitterPercent < 0 || cfg.JitterPercent > 1 {
		cfg.JitterPercent = defaultJitterPercent
	}

	return &AuthRetryPolicy{
		cfg:       cfg,
		endpoints: make(map[string]*endpointState),
	}
}

// IsAuthDependent проверяет, относится ли путь к auth-зависимым
// ресурсам. 401 на остальных путях (включая token-эндпоинт)
// политикой не обрабатывается.
func IsAuthDependent(path string) bool {
	for _, prefix := range authResourcePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// OnUnauthorized регистрирует 401 для эндпоинта.
//
// Возвращает задержку перед повтором и retry=true, либо retry=false,
// если попытки исчерпаны (эндпоинт переходит в STOPPED).
func (p *AuthRetryPolicy) OnUnauthorized(endpoint string) (delay time.Duration, retry bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state(endpoint)
	st.attempts++

	if st.attempts >= p.cfg.MaxAttempts {
		return 0, false
	}

	delay = st.backoff.NextBackOff()
	// Jitter может вывести за MaxInterval — clamp к [0, MaxDelay]
	if delay > p.cfg.MaxDelay {
		delay = p.cfg.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

// OnSuccess сбрасывает счётчик эндпоинта: любой успешный вызов
// возвращает его в HEALTHY.
func (p *AuthRetryPolicy) OnSuccess(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state(endpoint)
	st.attempts = 0
	st.backoff.Reset()
	st.lastSuccess = time.Now()
}

// State возвращает текущее состояние эндпоинта.
func (p *AuthRetryPolicy) State(endpoint string) PolicyState {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.endpoints[endpoint]
	switch {
	case !ok || st.attempts == 0:
		return StateHealthy
	case st.attempts >= p.cfg.MaxAttempts:
		return StateStopped
	default:
		return StateRetrying
	}
}

// Attempts возвращает текущий счётчик попыток эндпоинта.
func (p *AuthRetryPolicy) Attempts(endpoint string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st, ok := p.endpoints[endpoint]; ok {
		return st.attempts
	}
	return 0
}

// state возвращает (создавая при необходимости) состояние эндпоинта.
// Вызывается под mu.
func (p *AuthRetryPolicy) state(endpoint string) *endpointState {
	st, ok := p.endpoints[endpoint]
	if !ok {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = p.cfg.BaseDelay
		bo.RandomizationFactor = p.cfg.JitterPercent
		bo.Multiplier = 2
		bo.MaxInterval = p.cfg.MaxDelay
		bo.MaxElapsedTime = 0 // попытки считаем сами
		bo.Reset()

		st = &endpointState{backoff: bo}
		p.endpoints[endpoint] = st
	}
	return st
}
