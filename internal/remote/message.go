package remote

import (
	"encoding/json"
	"fmt"
)

// SetCommand is the value of the "z" field in a state mutation envelope.
const SetCommand = "set"

// Message is a decoded inbound payload: SetVariables or Unknown.
type Message interface {
	isMessage()
}

// SetVariables asks the receiver to write each variable into its state.
type SetVariables struct {
	Variables map[string]any
}

// Unknown is any payload that is not a recognized envelope. Err is set when
// the payload was not valid JSON of the expected shape.
type Unknown struct {
	Raw []byte
	Err error
}

func (SetVariables) isMessage() {}
func (Unknown) isMessage()      {}

type envelope struct {
	Z         string         `json:"z"`
	Variables map[string]any `json:"variables"`
}

// Decode parses an inbound payload. It never fails: anything that is not
// {"z":"set","variables":{...}} decodes to Unknown.
func Decode(data []byte) Message {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Unknown{Raw: data, Err: fmt.Errorf("failed to decode message: %w", err)}
	}
	if env.Z != SetCommand || env.Variables == nil {
		return Unknown{Raw: data}
	}
	return SetVariables{Variables: env.Variables}
}

// Encode builds the set envelope for vars.
func Encode(vars map[string]any) ([]byte, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	data, err := json.Marshal(envelope{Z: SetCommand, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}
