package queue

import (
	"context"
	"errors"
	"sync"
)

// MemoryBroker реализует внутрипроцессный брокер с семантикой DLQ.
// Используется в тестах и при CAMPUSPRINT_BROKER=none.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string][][]byte
	signal map[string]chan struct{}
	closed bool
}

// NewMemoryBroker создаёт пустой брокер.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues: make(map[string][][]byte),
		signal: make(map[string]chan struct{}),
	}
}

// Publish кладёт сообщение в конец очереди.
func (b *MemoryBroker) Publish(_ context.Context, queueName string, msg Message) error {
	body, err := msg.Encode()
	if err != nil {
		return err
	}
	return b.PublishRaw(queueName, body)
}

// PublishRaw кладёт готовое тело в очередь; используется для DLQ и replay.
func (b *MemoryBroker) PublishRaw(queueName string, body []byte) error {
	if len(body) == 0 {
		return errors.New("empty message body")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.queues[queueName] = append(b.queues[queueName], body)
	b.notifyLocked(queueName)
	return nil
}

// Len возвращает число сообщений, ожидающих в очереди.
func (b *MemoryBroker) Len(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queueName])
}

// Peek возвращает копию тел сообщений очереди без изъятия.
func (b *MemoryBroker) Peek(queueName string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([][]byte, len(b.queues[queueName]))
	copy(out, b.queues[queueName])
	return out
}

// Source возвращает источник сообщений очереди queueName.
func (b *MemoryBroker) Source(queueName string) Source {
	return &memorySource{broker: b, queue: queueName}
}

// Close будит ожидающих получателей; после закрытия Next возвращает ErrClosed.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for name, ch := range b.signal {
		close(ch)
		delete(b.signal, name)
	}
	return nil
}

func (b *MemoryBroker) notifyLocked(queueName string) {
	if ch, ok := b.signal[queueName]; ok {
		close(ch)
		delete(b.signal, queueName)
	}
}

// take изымает первое сообщение или возвращает канал ожидания.
func (b *MemoryBroker) take(queueName string) ([]byte, <-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, ErrClosed
	}
	if pending := b.queues[queueName]; len(pending) > 0 {
		body := pending[0]
		b.queues[queueName] = pending[1:]
		return body, nil, nil
	}
	ch, ok := b.signal[queueName]
	if !ok {
		ch = make(chan struct{})
		b.signal[queueName] = ch
	}
	return nil, ch, nil
}

type memorySource struct {
	broker *MemoryBroker
	queue  string
}

func (s *memorySource) Next(ctx context.Context) (Delivery, error) {
	for {
		body, wait, err := s.broker.take(s.queue)
		if err != nil {
			return nil, err
		}
		if body != nil {
			return &memoryDelivery{broker: s.broker, queue: s.queue, body: body}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

type memoryDelivery struct {
	broker *MemoryBroker
	queue  string
	body   []byte
	once   sync.Once
}

func (d *memoryDelivery) Body() []byte { return d.body }

func (d *memoryDelivery) Ack() error {
	settled := false
	d.once.Do(func() { settled = true })
	if !settled {
		return errAlreadySettled
	}
	return nil
}

func (d *memoryDelivery) Reject(error) error {
	var err error = errAlreadySettled
	d.once.Do(func() {
		err = d.broker.PublishRaw(DLQName(d.queue), d.body)
	})
	return err
}

var errAlreadySettled = errors.New("delivery already settled")

var _ Publisher = (*MemoryBroker)(nil)
