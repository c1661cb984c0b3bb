package vipps

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HenrikVollan/KakaoBoks/app/models"
)

// Ingress errors. Both reject the event at the boundary with no side effects.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrUnknownEventType = errors.New("unknown webhook event type")
)

// Provider event type strings as delivered by Vipps recurring callbacks.
const (
	eventTypeChargeCaptured   = "recurring.charge-captured.v1"
	eventTypeChargeFailed     = "recurring.charge-failed.v1"
	eventTypeAgreementStopped = "recurring.agreement-stopped.v1"
	eventTypeAgreementExpired = "recurring.agreement-expired.v1"
)

// WebhookEvent is the normalized internal form of a verified provider
// callback. Producing it is a pure parse step: no storage, no transitions.
type WebhookEvent struct {
	ProviderEventID string
	AgreementID     string
	Kind            string
	AmountMinor     int64
	OccurredAt      time.Time
}

type webhookPayload struct {
	EventID     string `json:"eventId"`
	EventType   string `json:"eventType"`
	AgreementID string `json:"agreementId"`
	ChargeID    string `json:"chargeId"`
	// Vipps reports amounts as integer minor units (øre).
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Occurred string `json:"occurred"`
}

// ParseWebhookEvent normalizes a raw Vipps callback body into a WebhookEvent.
// Missing required fields fail with ErrMalformedPayload; event types outside
// the recurring set fail with ErrUnknownEventType so the caller can ack and
// ignore them.
func ParseWebhookEvent(raw []byte) (*WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if strings.TrimSpace(p.EventID) == "" {
		return nil, fmt.Errorf("%w: missing eventId", ErrMalformedPayload)
	}
	if strings.TrimSpace(p.AgreementID) == "" {
		return nil, fmt.Errorf("%w: missing agreementId", ErrMalformedPayload)
	}

	kind, err := KindFromEventType(p.EventType)
	if err != nil {
		return nil, err
	}

	if kind == models.EventKindChargeSucceeded && p.Amount <= 0 {
		return nil, fmt.Errorf("%w: charge event without positive amount", ErrMalformedPayload)
	}

	occurredAt := time.Now().UTC()
	if s := strings.TrimSpace(p.Occurred); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%w: bad occurred timestamp %q", ErrMalformedPayload, s)
		}
		occurredAt = t.UTC()
	}

	return &WebhookEvent{
		ProviderEventID: strings.TrimSpace(p.EventID),
		AgreementID:     strings.TrimSpace(p.AgreementID),
		Kind:            kind,
		AmountMinor:     p.Amount,
		OccurredAt:      occurredAt,
	}, nil
}

// KindFromEventType maps a provider event type string to the internal kind.
func KindFromEventType(eventType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case eventTypeChargeCaptured:
		return models.EventKindChargeSucceeded, nil
	case eventTypeChargeFailed:
		return models.EventKindChargeFailed, nil
	case eventTypeAgreementStopped:
		return models.EventKindAgreementCancelled, nil
	case eventTypeAgreementExpired:
		return models.EventKindAgreementExpired, nil
	case "":
		return "", fmt.Errorf("%w: missing eventType", ErrMalformedPayload)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
}
