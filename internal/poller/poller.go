package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	OrderConfirmedTopic = "order-confirmed"
	ConsumerGroup       = "storefront-cart"
)

var ErrMissingSession = errors.New("missing or invalid session_id")

// MessageReader is the part of *kafka.Reader the poller uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CartClearer empties the cart of a session.
type CartClearer func(ctx context.Context, sessionID string) error

type orderConfirmed struct {
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
}

// Poller clears a session's cart once the order it handed off is confirmed.
type Poller struct {
	reader    MessageReader
	clearCart CartClearer
	log       *zap.Logger
}

func NewPoller(clearCart CartClearer, log *zap.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    OrderConfirmedTopic,
		GroupID:  ConsumerGroup,
		MaxBytes: 10e6, // 10MB
	})
	return NewPollerWithReader(reader, clearCart, log)
}

func NewPollerWithReader(reader MessageReader, clearCart CartClearer, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{reader: reader, clearCart: clearCart, log: log}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.readAndClearCart(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Warn("error closing reader", zap.Error(err))
	}
}

func (p *Poller) readAndClearCart(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("error reading message", zap.Error(err))
		}
		return
	}

	if err := p.handle(ctx, m); err != nil {
		p.log.Warn("order confirmation skipped",
			zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

func (p *Poller) handle(ctx context.Context, m kafka.Message) error {
	var payload orderConfirmed
	if err := json.Unmarshal(m.Value, &payload); err != nil {
		return fmt.Errorf("error parsing message: %w", err)
	}
	if payload.SessionID == "" {
		return ErrMissingSession
	}

	if err := p.clearCart(ctx, payload.SessionID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	p.log.Info("cart cleared after order confirmation",
		zap.String("session_id", payload.SessionID),
		zap.String("order_id", payload.OrderID))
	return nil
}
