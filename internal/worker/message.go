package worker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"supercv-backend/internal/queue"
)

// MessageMeta captures details useful for logging undecodable payloads.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode or validation failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingRecordID indicates a message that names no analysis record.
type ErrMissingRecordID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingRecordID) Error() string { return "missing record id" }

// ParseMessage decodes and validates a queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}
	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if err := msg.Validate(); err != nil {
		if err == queue.ErrMissingRecordID {
			return msg, meta, ErrMissingRecordID{Meta: meta, RequestID: msg.RequestID}
		}
		return msg, meta, ErrDecode{Meta: meta, Err: err}
	}
	return msg, meta, nil
}
