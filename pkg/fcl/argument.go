package fcl

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/onflow/cadence"
	jsoncdc "github.com/onflow/cadence/encoding/json"
)

type Xform struct {
	Label string `json:"label"`
}

// Argument is a cadence value registered on an interaction under a temp id.
// A decoded argument keeps its JSON-Cadence encoding and has no Value.
type Argument struct {
	Kind   string
	TempID string
	Value  cadence.Value
	Xform  Xform

	encoded []byte
}

func NewArgument(value cadence.Value) (*Argument, error) {
	encoded, err := jsoncdc.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("encode cadence argument: %w", err)
	}
	return &Argument{
		Kind:    "ARGUMENT",
		TempID:  uuid.New().String(),
		Value:   value,
		Xform:   Xform{Label: value.Type().ID()},
		encoded: encoded,
	}, nil
}

// Encoded returns the JSON-Cadence form used as a transaction argument.
func (a *Argument) Encoded() []byte {
	return a.encoded
}

type argumentJSON struct {
	Kind       string          `json:"kind"`
	TempID     string          `json:"tempId"`
	Value      json.RawMessage `json:"value"`
	AsArgument json.RawMessage `json:"asArgument"`
	Xform      Xform           `json:"xform"`
}

func (a Argument) MarshalJSON() ([]byte, error) {
	var inner struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(a.encoded, &inner); err != nil {
		return nil, fmt.Errorf("argument %s: %w", a.TempID, err)
	}
	return json.Marshal(argumentJSON{
		Kind:       a.Kind,
		TempID:     a.TempID,
		Value:      inner.Value,
		AsArgument: json.RawMessage(a.encoded),
		Xform:      a.Xform,
	})
}

func (a *Argument) UnmarshalJSON(data []byte) error {
	var raw argumentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Kind = raw.Kind
	a.TempID = raw.TempID
	a.Xform = raw.Xform
	a.encoded = []byte(raw.AsArgument)
	return nil
}
