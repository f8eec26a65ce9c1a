package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Envelope — обёртка события для публикации в RabbitMQ.
type Envelope struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Kind — тип события.
	Kind Kind `json:"kind"`

	// Payload — само событие.
	Payload Event `json:"payload"`

	// Timestamp — время публикации.
	Timestamp time.Time `json:"timestamp"`
}

// AMQPConfig — конфигурация AMQPListener.
type AMQPConfig struct {
	// URL — адрес RabbitMQ (amqp://...).
	URL string

	// Exchange — имя exchange (topic). Default: "conveyor.events".
	Exchange string

	// Logger.
	Logger *slog.Logger
}

// AMQPListener пересылает события runtime в exchange RabbitMQ.
//
// Доставка best-effort: ошибка публикации логируется, но не влияет
// на runtime. Регистрировать через RegisterAsync, чтобы сетевые
// задержки не блокировали poll-цикл.
type AMQPListener struct {
	exchange string
	logger   *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPListener подключается к RabbitMQ и объявляет exchange.
func NewAMQPListener(cfg AMQPConfig) (*AMQPListener, error) {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "conveyor.events"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // args
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPListener{
		exchange: exchange,
		logger:   logger,
		conn:     conn,
		ch:       ch,
	}, nil
}

// Bind регистрирует listener на все типы событий (асинхронно).
func (l *AMQPListener) Bind(d *Dispatcher) {
	kinds := []Kind{
		KindPollStarted, KindPollCompleted, KindPollFailure,
		KindTaskExecutionStarted, KindTaskExecutionCompleted, KindTaskExecutionFailure,
	}
	for _, kind := range kinds {
		d.RegisterAsync(kind, l)
	}
}

// OnEvent реализует Listener: публикует событие с routing key
// "conveyor.<kind>".
func (l *AMQPListener) OnEvent(e Event) {
	env := Envelope{
		ID:        uuid.New().String(),
		Kind:      e.EventKind(),
		Payload:   e,
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(env)
	if err != nil {
		l.logger.Error("failed to marshal event", "kind", env.Kind, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	l.mu.Lock()
	defer l.mu.Unlock()

	err = l.ch.PublishWithContext(
		ctx,
		l.exchange,                  // exchange
		"conveyor."+string(env.Kind), // routing key
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   env.ID,
			Timestamp:   env.Timestamp,
			Body:        body,
		},
	)
	if err != nil {
		// Best-effort: события не критичны для выполнения task'ов
		l.logger.Warn("failed to publish event",
			"kind", env.Kind,
			"exchange", l.exchange,
			"error", err,
		)
	}
}

// Close закрывает соединение с RabbitMQ.
func (l *AMQPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.ch != nil {
		if err := l.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
