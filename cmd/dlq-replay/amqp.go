package main

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/messaging/amqp"
)

type dlqReplayer interface {
	ReplayDLQ(ctx context.Context, queueName string, limit int, dryRun bool) (amqp.ReplayReport, error)
	Close() error
}

var newAMQPReplayer = func(ctx context.Context, url string) (dlqReplayer, error) {
	return amqp.Connect(ctx, url, amqp.WithLogger(log.WithField("component", "dlq-replay")))
}

// runAMQP переносит сообщения через basic.get + publish + ack.
func runAMQP(ctx context.Context, cfg config) error {
	client, err := newAMQPReplayer(ctx, cfg.amqpURL)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	for _, name := range cfg.queues {
		report, err := client.ReplayDLQ(ctx, name, cfg.limit, !cfg.execute)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"mode":      mode(cfg.execute),
			"queue":     report.Queue,
			"available": report.Available,
			"replayed":  report.Replayed,
		}).Info("dlq replay finished")
	}
	return nil
}
