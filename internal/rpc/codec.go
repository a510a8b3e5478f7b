package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/mto-simulator/core"
	sim "github.com/signalsfoundry/mto-simulator/internal/sim/state"
	"github.com/signalsfoundry/mto-simulator/model"
)

// Payloads carried inside structpb.Struct messages. The field names are the
// JSON names of the engine types, so HTTP and gRPC clients see one shape.

// StepRequest advances a running session by DeltaMillis.
type StepRequest struct {
	DeltaMillis model.Millis `json:"delta_ms"`
}

// SpeedRequest changes the speed multiplier.
type SpeedRequest struct {
	Speed int `json:"speed"`
}

// DecisionResult is returned by ApplyAction, Undo and Redo.
type DecisionResult struct {
	Decision model.Decision `json:"decision"`
	State    *core.State    `json:"state"`
}

// StateUpdate is one message of the WatchState stream.
type StateUpdate struct {
	Reason   string            `json:"reason"`
	State    *core.State       `json:"state"`
	Events   []model.GameEvent `json:"events,omitempty"`
	Decision *model.Decision   `json:"decision,omitempty"`
}

func updateFromSession(u sim.Update) StateUpdate {
	return StateUpdate{Reason: u.Reason, State: u.State, Events: u.Events, Decision: u.Decision}
}

// Encode converts any JSON-serializable value into a Struct.
func Encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return out, nil
}

// Decode fills v from a Struct. Unknown fields are rejected.
func Decode(in *structpb.Struct, v any) error {
	if in == nil {
		return fmt.Errorf("%w: empty payload", ErrInvalidRequest)
	}
	b, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
