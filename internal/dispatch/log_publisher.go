package dispatch

import (
	"context"

	"github.com/rs/zerolog"

	"hostwatch/internal/alerts"
	"hostwatch/internal/logger"
	"hostwatch/internal/models"
)

// LogPublisher writes notifications to the service log. It is used when no
// Kafka brokers are configured.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{log: logger.WithComponent("notifier")}
}

func (p *LogPublisher) Publish(_ context.Context, env *models.Envelope) error {
	level := zerolog.WarnLevel
	if env.Intent.Kind == alerts.KindRecover || env.Intent.Test {
		level = zerolog.InfoLevel
	}
	p.log.WithLevel(level).
		Str("intent_id", env.Intent.ID).
		Str("channel", string(env.Intent.Channel)).
		Str("kind", string(env.Intent.Kind)).
		Float64("value", env.Intent.Value).
		Bool("test", env.Intent.Test).
		Str("host", env.Host).
		Msg(env.Message)
	return nil
}

func (p *LogPublisher) PublishBatch(ctx context.Context, envs []*models.Envelope) error {
	for _, env := range envs {
		_ = p.Publish(ctx, env)
	}
	return nil
}
