package amqp

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
)

// ReplayReport описывает результат переноса сообщений из DLQ.
type ReplayReport struct {
	Queue     string
	Available int
	Replayed  int
	DryRun    bool
}

// ReplayDLQ переносит до limit сообщений из <queueName>.dlq обратно в queueName.
// В режиме dryRun только считает сообщения в DLQ.
func (c *Client) ReplayDLQ(ctx context.Context, queueName string, limit int, dryRun bool) (ReplayReport, error) {
	dlq := queue.DLQName(queueName)
	report := ReplayReport{Queue: queueName, DryRun: dryRun}

	ch, err := c.openChannel(0)
	if err != nil {
		return report, err
	}
	defer ch.Close()

	info, err := ch.QueueDeclarePassive(dlq, true, false, false, false, nil)
	if err != nil {
		return report, fmt.Errorf("inspect %s: %w", dlq, err)
	}
	report.Available = info.Messages
	if dryRun {
		return report, nil
	}

	for limit <= 0 || report.Replayed < limit {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		msg, ok, err := ch.Get(dlq, false)
		if err != nil {
			return report, fmt.Errorf("get from %s: %w", dlq, err)
		}
		if !ok {
			break
		}

		if err := ch.PublishWithContext(ctx, "", queueName, false, false, persistentJSON(msg.Body)); err != nil {
			_ = msg.Nack(false, true)
			return report, fmt.Errorf("republish to %s: %w", queueName, err)
		}
		if err := msg.Ack(false); err != nil {
			return report, fmt.Errorf("ack %s message: %w", dlq, err)
		}
		report.Replayed++
	}

	c.logger.WithFields(log.Fields{
		"queue":    queueName,
		"replayed": report.Replayed,
	}).Info("dead-letter messages replayed")
	return report, nil
}
