package queue

import (
	"encoding/json"
	"errors"
	"strings"
)

// Kind selects which job a message triggers.
type Kind string

const (
	KindAnalyze   Kind = "analyze"
	KindCustomize Kind = "customize"
)

// MessageVersion is bumped whenever the payload shape changes.
const MessageVersion = 2

// Message is the payload sent to downstream queue consumers.
type Message struct {
	RecordID   string `json:"recordId"`
	Kind       Kind   `json:"kind"`
	Mode       string `json:"mode,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// ErrMissingRecordID is returned by Validate when a message names no record.
var ErrMissingRecordID = errors.New("missing record id")

// Validate checks the fields every consumer relies on. Messages without a kind
// are treated as analyze jobs.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.RecordID) == "" {
		return ErrMissingRecordID
	}
	switch m.Kind {
	case "":
		m.Kind = KindAnalyze
	case KindAnalyze, KindCustomize:
	default:
		return errors.New("unknown message kind: " + string(m.Kind))
	}
	return nil
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
