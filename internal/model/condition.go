package model

import (
	"encoding/json"
	"fmt"
)

// ConditionKind tags a condition variant on the wire.
type ConditionKind string

const (
	ConditionFlightCancellation ConditionKind = "FlightCancellation"
)

// Condition is a predicate over an external observation. Concrete variants are
// closed over this package; the evaluator dispatches on the concrete type.
type Condition interface {
	Kind() ConditionKind
	// SourceKey is the key used to query the condition source.
	SourceKey() string
}

// FlightCancellation is met once the flight is reported cancelled.
type FlightCancellation struct {
	FlightNumber string `json:"flight_number"`
	FlightDate   string `json:"flight_date"`
}

func (FlightCancellation) Kind() ConditionKind { return ConditionFlightCancellation }

func (f FlightCancellation) SourceKey() string { return f.FlightNumber }

// UnknownCondition preserves a condition whose kind this build does not know.
type UnknownCondition struct {
	Type ConditionKind
	Raw  json.RawMessage
}

func (u UnknownCondition) Kind() ConditionKind { return u.Type }

func (UnknownCondition) SourceKey() string { return "" }

type conditionHeader struct {
	ConditionType ConditionKind `json:"condition_type"`
}

type flightCancellationJSON struct {
	ConditionType ConditionKind `json:"condition_type"`
	FlightCancellation
}

// MarshalCondition encodes a condition with its condition_type tag.
func MarshalCondition(c Condition) ([]byte, error) {
	switch typed := c.(type) {
	case nil:
		return []byte("null"), nil
	case FlightCancellation:
		return json.Marshal(flightCancellationJSON{ConditionType: typed.Kind(), FlightCancellation: typed})
	case *FlightCancellation:
		return json.Marshal(flightCancellationJSON{ConditionType: typed.Kind(), FlightCancellation: *typed})
	case UnknownCondition:
		if len(typed.Raw) > 0 {
			return typed.Raw, nil
		}
		return json.Marshal(conditionHeader{ConditionType: typed.Type})
	default:
		return nil, fmt.Errorf("marshal condition: unsupported type %T", c)
	}
}

// UnmarshalCondition decodes a tagged condition. Unknown tags decode into
// UnknownCondition rather than failing.
func UnmarshalCondition(data []byte) (Condition, error) {
	var header conditionHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("decode condition: %w", err)
	}

	switch header.ConditionType {
	case ConditionFlightCancellation:
		var fc FlightCancellation
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("decode flight condition: %w", err)
		}
		return fc, nil
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return UnknownCondition{Type: header.ConditionType, Raw: raw}, nil
	}
}
