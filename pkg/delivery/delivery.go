// Package delivery hands outbound journey actions to external channels.
package delivery

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
)

var (
	ErrDeliveryFailed = errors.New("delivery failed")
	ErrWebhookStatus  = errors.New("webhook returned non-success status")
	ErrWebhookURL     = errors.New("invalid webhook url")
)

// Message is a rendered email, sms, voice or chat action.
type Message struct {
	Channel       models.StepType
	To            string
	Subject       string
	Content       string
	TemplateID    any
	ParticipantID int64
	LeadID        int64
	StepID        int64
}

// Receipt identifies an accepted message at the provider.
type Receipt struct {
	ProviderMessageID string
}

// Deliverer sends messages over the step's channel.
type Deliverer interface {
	Deliver(ctx context.Context, message Message) (Receipt, error)
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, message Message) (Receipt, error)

func (f DelivererFunc) Deliver(ctx context.Context, message Message) (Receipt, error) {
	return f(ctx, message)
}

// LogDeliverer records messages in the log instead of sending them.
type LogDeliverer struct {
	logger *slog.Logger
}

func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger.With("module", "log_deliverer")}
}

func (d *LogDeliverer) Deliver(ctx context.Context, message Message) (Receipt, error) {
	receipt := Receipt{ProviderMessageID: uuid.NewString()}

	d.logger.InfoContext(ctx, "message delivered",
		"channel", message.Channel,
		"to", message.To,
		"participant_id", message.ParticipantID,
		"step_id", message.StepID,
		"provider_message_id", receipt.ProviderMessageID,
		"content_length", len(message.Content),
	)

	return receipt, nil
}
