package worker

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
)

// Runner запускает по одной горутине на consumer и ждёт их завершения.
type Runner struct {
	consumers []*queue.Consumer
}

// NewRunner создаёт Runner.
func NewRunner(consumers ...*queue.Consumer) *Runner {
	return &Runner{consumers: consumers}
}

// Run блокируется до отмены ctx. Если один consumer завершился с ошибкой,
// остальные останавливаются и возвращается первая ошибка.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range r.consumers {
		g.Go(func() error {
			return c.Run(gctx)
		})
	}
	return g.Wait()
}
