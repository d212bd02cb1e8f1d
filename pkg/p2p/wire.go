package p2p

import (
	"encoding/json"
	"fmt"
)

// Message kinds carried on the feed topics
const (
	kindFulfillment = "fulfillment"
	kindMatch       = "match"
	kindOutcome     = "outcome"
)

// Envelope frames every feed message: a kind tag plus the JSON-encoded
// event, so a consumer can reject misrouted payloads before decoding them
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func encodeEnvelope(kind string, event any) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: kind, Payload: payload})
}

func decodeEnvelope(data []byte, kind string, event any) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Kind != kind {
		return fmt.Errorf("unexpected message kind %q", env.Kind)
	}
	return json.Unmarshal(env.Payload, event)
}
