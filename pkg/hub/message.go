// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import "encoding/json"

// Message is a payload to be broadcast to clients.
type Message struct {
	Data []byte
}

// NewMessage wraps pre-encoded bytes.
func NewMessage(data []byte) Message {
	return Message{Data: data}
}

// NewJSONMessage encodes v as JSON.
func NewJSONMessage(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Data: data}, nil
}
