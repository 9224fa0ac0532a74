package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Sandbox is an offline Gateway for development. Intent ids are random so they
// stay unique across restarts; webhook payloads are plain JSON without a signature.
type Sandbox struct{}

func NewSandbox() *Sandbox {
	return &Sandbox{}
}

func (s *Sandbox) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if amountMinor <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", amountMinor)
	}

	id := "pi_sandbox_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return &Intent{ID: id, ClientSecret: id + "_secret_sandbox"}, nil
}

type sandboxEvent struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	IntentID string `json:"intent_id"`
	Reason   string `json:"reason"`
}

func (s *Sandbox) ParseEvent(payload []byte, signature string) (*Event, error) {
	var ev sandboxEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("%w: id and type are required", ErrInvalidSignature)
	}
	return &Event{ID: ev.ID, Type: ev.Type, IntentID: ev.IntentID, Reason: ev.Reason}, nil
}
