package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

// CartClearer is implemented by service.CartService.
type CartClearer interface {
	ClearCart(ctx context.Context, owner domain.Owner) error
}

// CheckoutCompletedEvent is the part of the checkout outbox payload this
// service reads.
type CheckoutCompletedEvent struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

// CheckoutConsumer empties an account's cart once its checkout completed.
// Clearing is idempotent, so redelivered events are harmless.
type CheckoutConsumer struct {
	carts  CartClearer
	reader MessageReader
	logger *zap.Logger
}

func NewCheckoutConsumer(carts CartClearer, logger *zap.Logger, brokers []string, topic, groupID string) *CheckoutConsumer {
	return NewCheckoutConsumerWithReader(carts, newReader(brokers, topic, groupID), logger)
}

func NewCheckoutConsumerWithReader(carts CartClearer, reader MessageReader, logger *zap.Logger) *CheckoutConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutConsumer{carts: carts, reader: reader, logger: logger}
}

func (c *CheckoutConsumer) Run(ctx context.Context) {
	c.logger.Info("checkout consumer started")
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *CheckoutConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("error closing kafka reader", zap.Error(err))
	}
}

func (c *CheckoutConsumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Error("error reading message", zap.Error(err))
		return
	}

	if err := c.handle(ctx, m.Value); err != nil {
		c.logger.Error("failed to handle checkout event",
			zap.Int64("offset", m.Offset),
			zap.String("event_type", header(m, "event_type")),
			zap.Error(err))
	}
}

func (c *CheckoutConsumer) handle(ctx context.Context, payload []byte) error {
	var event CheckoutCompletedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("parse event: %w", err)
	}
	if event.UserID == "" {
		return errors.New("missing user_id")
	}

	owner := domain.AccountOwner(event.UserID)
	if err := c.carts.ClearCart(ctx, owner); err != nil {
		return fmt.Errorf("clear cart for checkout %s: %w", event.CheckoutID, err)
	}

	c.logger.Info("cart cleared after checkout",
		zap.String("checkout_id", event.CheckoutID),
		zap.Stringer("owner", owner))
	return nil
}
