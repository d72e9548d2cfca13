package notify

import (
	"context"
	"fmt"

	"sourcing/internal/config"
	"sourcing/internal/logger"
	"sourcing/models"
)

// Publisher delivers one outbox event to the outside world.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
	Close() error
}

// LogPublisher only writes the event to the log. Used when no broker is
// configured.
type LogPublisher struct {
	log logger.Logger
}

func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{log: log.With("publisher", "log")}
}

func (p *LogPublisher) Publish(ctx context.Context, ev models.Event) error {
	p.log.Infof(ctx, "event %s kind=%s recipient=%s: %s", ev.ID, ev.Kind, ev.RecipientID, ev.Message)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// NewPublisher builds the publisher selected by cfg.Driver.
func NewPublisher(ctx context.Context, cfg config.NotifyConfig, log logger.Logger) (Publisher, error) {
	switch cfg.Driver {
	case "", "log":
		return NewLogPublisher(log), nil
	case "kafka":
		return NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	case "redis":
		return NewRedisPublisher(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown notify driver %q", cfg.Driver)
	}
}
