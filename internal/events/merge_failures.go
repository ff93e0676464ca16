package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

const mergeFailedEvent = "MergeFailed"

// mergeFailedMessage is the wire form of domain.MergeFailure. The anonymous
// token only travels sealed.
type mergeFailedMessage struct {
	AccountID   string    `json:"account_id"`
	SealedToken string    `json:"sealed_token"`
	Attempt     int       `json:"attempt"`
	Error       string    `json:"error"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// FailurePublisher writes merge failures to Kafka. It satisfies
// service.FailureReporter.
type FailurePublisher struct {
	writer MessageWriter
	sealer *TokenSealer
}

func NewFailurePublisher(brokers []string, topic string, sealer *TokenSealer) *FailurePublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return NewFailurePublisherWithWriter(w, sealer)
}

func NewFailurePublisherWithWriter(w MessageWriter, sealer *TokenSealer) *FailurePublisher {
	return &FailurePublisher{writer: w, sealer: sealer}
}

func (p *FailurePublisher) ReportMergeFailure(ctx context.Context, f domain.MergeFailure) error {
	sealed, err := p.sealer.Seal(f.AnonymousToken, f.AccountID)
	if err != nil {
		return fmt.Errorf("seal merge failure token: %w", err)
	}
	payload, err := json.Marshal(mergeFailedMessage{
		AccountID:   f.AccountID,
		SealedToken: sealed,
		Attempt:     f.Attempt,
		Error:       f.Error,
		OccurredAt:  f.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal merge failure: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(f.AccountID), // keep one account's retries in order
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(mergeFailedEvent)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish merge failure: %w", err)
	}
	return nil
}

func (p *FailurePublisher) Close() error {
	return p.writer.Close()
}

// MergeRunner is implemented by service.MergeCoordinator. A failed run
// reports itself again with the attempt number it was given.
type MergeRunner interface {
	Run(ctx context.Context, account domain.Owner, token string, attempt int) error
}

// MergeRetryConsumer re-runs failed merges after a delay, up to maxAttempts
// tries in total.
type MergeRetryConsumer struct {
	merges      MergeRunner
	reader      MessageReader
	sealer      *TokenSealer
	maxAttempts int
	delay       time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewMergeRetryConsumer(merges MergeRunner, sealer *TokenSealer, logger *zap.Logger, maxAttempts int, delay time.Duration, brokers []string, topic, groupID string) *MergeRetryConsumer {
	return NewMergeRetryConsumerWithReader(merges, newReader(brokers, topic, groupID), sealer, logger, maxAttempts, delay)
}

func NewMergeRetryConsumerWithReader(merges MergeRunner, reader MessageReader, sealer *TokenSealer, logger *zap.Logger, maxAttempts int, delay time.Duration) *MergeRetryConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &MergeRetryConsumer{
		merges:      merges,
		reader:      reader,
		sealer:      sealer,
		maxAttempts: maxAttempts,
		delay:       delay,
		logger:      logger,
		now:         time.Now,
	}
}

func (c *MergeRetryConsumer) Run(ctx context.Context) {
	c.logger.Info("merge retry consumer started", zap.Int("max_attempts", c.maxAttempts))
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *MergeRetryConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("error closing kafka reader", zap.Error(err))
	}
}

func (c *MergeRetryConsumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Error("error reading message", zap.Error(err))
		return
	}

	var msg mergeFailedMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		c.logger.Error("error parsing merge failure", zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}
	token, err := c.sealer.Open(msg.SealedToken, msg.AccountID)
	if err != nil {
		c.logger.Error("error opening merge failure token",
			zap.Int64("offset", m.Offset), zap.String("account_id", msg.AccountID), zap.Error(err))
		return
	}
	c.retry(ctx, domain.MergeFailure{
		AccountID:      msg.AccountID,
		AnonymousToken: token,
		Attempt:        msg.Attempt,
		Error:          msg.Error,
		OccurredAt:     msg.OccurredAt,
	})
}

func (c *MergeRetryConsumer) retry(ctx context.Context, f domain.MergeFailure) {
	log := c.logger.With(
		zap.String("account_id", f.AccountID),
		zap.Int("attempt", f.Attempt))

	if f.AccountID == "" || f.AnonymousToken == "" {
		log.Error("merge failure event missing owner")
		return
	}
	if f.Attempt >= c.maxAttempts {
		log.Error("merge abandoned after max attempts", zap.String("last_error", f.Error))
		return
	}

	if wait := f.OccurredAt.Add(c.delay).Sub(c.now()); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	if err := c.merges.Run(ctx, domain.AccountOwner(f.AccountID), f.AnonymousToken, f.Attempt+1); err != nil {
		log.Warn("merge retry failed", zap.Error(err))
		return
	}
	log.Info("merge retry succeeded")
}
