package proto

import (
	"encoding/json"
	"fmt"
)

// Frame kinds exchanged between a session client and the relay.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameTrack       = "track"
	FrameUntrack     = "untrack"
	FrameAck         = "ack"
	FramePresence    = "presence"
	FrameBroadcast   = "broadcast"
)

// Frame events.
const (
	// EventMessage is the single broadcast event carrying protocol messages.
	EventMessage = "message"

	EventSync  = "sync"
	EventJoin  = "join"
	EventLeave = "leave"
)

// Subscription acknowledgment statuses.
const (
	StatusSubscribed = "subscribed"
	StatusClosed     = "closed"
	StatusError      = "error"
)

// Frame is the wire envelope between a session client and the relay.
// A broadcast frame is {type:"broadcast", event:"message", payload:<Message>}.
type Frame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Key     string          `json:"key,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PresenceMeta is the record a client publishes when it tracks presence.
type PresenceMeta struct {
	ClientID string `json:"clientId"`
	Role     string `json:"role"`
	OnlineAt string `json:"online_at"`
}

// PresenceState is the authoritative presence snapshot: key to every meta
// registered under it. Consumers take the first meta per key.
type PresenceState map[string][]PresenceMeta

// PresenceDiff is the payload of join and leave presence frames.
type PresenceDiff struct {
	Key           string         `json:"key"`
	NewPresences  []PresenceMeta `json:"newPresences,omitempty"`
	LeftPresences []PresenceMeta `json:"leftPresences,omitempty"`
}

// AckPayload reports a subscription state transition.
type AckPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// BroadcastFrame wraps a protocol message in its wire envelope.
func BroadcastFrame(topic string, msg Message) (Frame, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal broadcast payload: %w", err)
	}
	return Frame{
		Type:    FrameBroadcast,
		Event:   EventMessage,
		Topic:   topic,
		Payload: payload,
	}, nil
}

// DecodeMessage parses the protocol message carried by a broadcast frame.
func (f Frame) DecodeMessage() (Message, error) {
	if f.Type != FrameBroadcast || f.Event != EventMessage {
		return nil, fmt.Errorf("frame %s/%s carries no message", f.Type, f.Event)
	}
	return ParseMessage(f.Payload)
}

// DecodeAck parses an ack frame payload.
func (f Frame) DecodeAck() (AckPayload, error) {
	var ack AckPayload
	if err := json.Unmarshal(f.Payload, &ack); err != nil {
		return AckPayload{}, fmt.Errorf("parse ack: %w", err)
	}
	return ack, nil
}

// DecodeState parses the snapshot carried by a presence sync frame.
func (f Frame) DecodeState() (PresenceState, error) {
	state := PresenceState{}
	if err := json.Unmarshal(f.Payload, &state); err != nil {
		return nil, fmt.Errorf("parse presence state: %w", err)
	}
	return state, nil
}

// DecodeDiff parses the payload of a presence join or leave frame.
func (f Frame) DecodeDiff() (PresenceDiff, error) {
	var diff PresenceDiff
	if err := json.Unmarshal(f.Payload, &diff); err != nil {
		return PresenceDiff{}, fmt.Errorf("parse presence diff: %w", err)
	}
	return diff, nil
}

// AckFrame builds a subscription acknowledgment for a topic.
func AckFrame(topic, status, reason string) Frame {
	payload, _ := json.Marshal(AckPayload{Status: status, Reason: reason})
	return Frame{Type: FrameAck, Topic: topic, Payload: payload}
}

// SyncFrame builds an authoritative presence snapshot frame.
func SyncFrame(topic string, state PresenceState) Frame {
	payload, _ := json.Marshal(state)
	return Frame{Type: FramePresence, Event: EventSync, Topic: topic, Payload: payload}
}

// DiffFrame builds a presence join or leave frame.
func DiffFrame(topic, event string, diff PresenceDiff) Frame {
	payload, _ := json.Marshal(diff)
	return Frame{Type: FramePresence, Event: event, Topic: topic, Payload: payload}
}
