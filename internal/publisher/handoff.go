package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	HandoffTopic     = "checkout-handoff"
	HandoffEventType = "checkout_handoff"
)

// HandoffItem is one cart line as seen by downstream order handling.
type HandoffItem struct {
	ProductID     string          `json:"product_id"`
	VariantKey    string          `json:"variant_key,omitempty"`
	Title         string          `json:"title"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int             `json:"quantity"`
	SelectedSizes []string        `json:"selected_sizes"`
}

// HandoffEvent is emitted when a session hands its cart off to the messaging checkout.
type HandoffEvent struct {
	HandoffID  string          `json:"handoff_id"`
	SessionID  string          `json:"session_id"`
	Items      []HandoffItem   `json:"items"`
	TotalItems int             `json:"total_items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Text       string          `json:"text"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewHandoffEvent snapshots lines into an event.
func NewHandoffEvent(handoffID, sessionID string, lines []domain.CartLine, text string, now time.Time) HandoffEvent {
	items := make([]HandoffItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, HandoffItem{
			ProductID:     l.ProductID,
			VariantKey:    l.VariantKey,
			Title:         l.Title,
			UnitPrice:     l.UnitPrice,
			Quantity:      l.Quantity,
			SelectedSizes: l.SelectedSizes,
		})
	}
	summary := domain.Summarize(lines)
	return HandoffEvent{
		HandoffID:  handoffID,
		SessionID:  sessionID,
		Items:      items,
		TotalItems: summary.TotalItems,
		Subtotal:   summary.Subtotal,
		Text:       text,
		CreatedAt:  now,
	}
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type HandoffPublisher struct {
	writer MessageWriter
	log    *zap.Logger
}

func NewHandoffPublisher(log *zap.Logger, brokers ...string) *HandoffPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  HandoffTopic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return NewHandoffPublisherWithWriter(w, log)
}

func NewHandoffPublisherWithWriter(w MessageWriter, log *zap.Logger) *HandoffPublisher {
	return &HandoffPublisher{writer: w, log: logger.OrNop(log)}
}

func (p *HandoffPublisher) Publish(ctx context.Context, event HandoffEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal handoff event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.SessionID), // one partition per session keeps its events ordered
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(HandoffEventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish handoff event: %w", err)
	}

	logger.WithContext(ctx, p.log).Info("checkout handoff published",
		zap.String("handoff_id", event.HandoffID),
		zap.Int("items", event.TotalItems))
	return nil
}

func (p *HandoffPublisher) Close() error {
	return p.writer.Close()
}
