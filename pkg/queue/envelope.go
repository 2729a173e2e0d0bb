package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Attribute names attached to published messages.
const (
	AttributeEventType     = "EventType"
	AttributeLeadID        = "LeadId"
	AttributeParticipantID = "ParticipantId"
	AttributeConnectionID  = "ConnectionId"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope is the JSON body of every queue message.
type Envelope struct {
	EventType string         `json:"event_type" validate:"required"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// DecodeEnvelope parses a message body. Numbers in Data decode as
// json.Number.
func DecodeEnvelope(body string) (*Envelope, error) {
	decoder := json.NewDecoder(bytes.NewReader([]byte(body)))
	decoder.UseNumber()

	var envelope Envelope

	err := decoder.Decode(&envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	err = validate.Struct(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	if envelope.Data == nil {
		envelope.Data = map[string]any{}
	}

	return &envelope, nil
}

func (e *Envelope) Encode() (string, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}

	return string(body), nil
}

// Attributes returns the routing attributes of an event as strings.
func Attributes(eventType string, data map[string]any) map[string]string {
	attributes := map[string]string{AttributeEventType: eventType}

	for attribute, key := range map[string]string{
		AttributeLeadID:        "lead_id",
		AttributeParticipantID: "participant_id",
		AttributeConnectionID:  "connection_id",
	} {
		value, ok := data[key]
		if !ok || value == nil {
			continue
		}

		attributes[attribute] = fmt.Sprint(value)
	}

	return attributes
}
