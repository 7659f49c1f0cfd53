// Package transport delivers live messages to connected clients. Every
// message travels as a single line: "<channel> <topic> <json>".
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedLine is returned by ParseLine for lines without a channel
// and topic.
var ErrMalformedLine = errors.New("malformed message line")

// Socket sends live messages.
type Socket interface {
	Send(ctx context.Context, channel, topic string, payload any) error
}

// Sink accepts already formatted lines, e.g. relayed from another process.
type Sink interface {
	Deliver(line []byte)
}

// Format encodes a message as one line. Channel and topic must not contain
// spaces or newlines.
func Format(channel, topic string, payload any) ([]byte, error) {
	if channel == "" || topic == "" {
		return nil, fmt.Errorf("format message: channel and topic are required")
	}
	if strings.ContainsAny(channel, " \n") || strings.ContainsAny(topic, " \n") {
		return nil, fmt.Errorf("format message %q %q: %w", channel, topic, ErrMalformedLine)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", topic, err)
	}
	line := make([]byte, 0, len(channel)+len(topic)+len(body)+2)
	line = append(line, channel...)
	line = append(line, ' ')
	line = append(line, topic...)
	line = append(line, ' ')
	return append(line, body...), nil
}

// ParseLine splits a formatted line back into its parts.
func ParseLine(line []byte) (channel, topic string, payload json.RawMessage, err error) {
	parts := bytes.SplitN(bytes.TrimRight(line, "\r\n"), []byte(" "), 3)
	if len(parts) < 3 || len(parts[0]) == 0 || len(parts[1]) == 0 {
		return "", "", nil, ErrMalformedLine
	}
	return string(parts[0]), string(parts[1]), json.RawMessage(parts[2]), nil
}

// Nop discards every message.
type Nop struct{}

func (Nop) Send(context.Context, string, string, any) error { return nil }
