package events

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

type chanReader struct {
	msgs   chan kafka.Message
	closed bool
}

func newChanReader(msgs ...kafka.Message) *chanReader {
	r := &chanReader{msgs: make(chan kafka.Message, len(msgs)+8)}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *chanReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *chanReader) Close() error {
	r.closed = true
	return nil
}

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

type recordingClearer struct {
	mu     sync.Mutex
	owners []domain.Owner
	err    error
}

func (c *recordingClearer) ClearCart(_ context.Context, owner domain.Owner) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.owners = append(c.owners, owner)
	return nil
}

func (c *recordingClearer) cleared() []domain.Owner {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Owner(nil), c.owners...)
}

type runCall struct {
	account domain.Owner
	token   string
	attempt int
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []runCall
	err   error
}

func (r *recordingRunner) Run(_ context.Context, account domain.Owner, token string, attempt int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, runCall{account, token, attempt})
	return r.err
}

func (r *recordingRunner) snapshot() []runCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runCall(nil), r.calls...)
}
