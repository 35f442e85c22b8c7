package proto

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates the protocol message union.
type MessageType string

const (
	TypeGameUpdate          MessageType = "gameUpdate"
	TypePlayerInput         MessageType = "playerInput"
	TypeButtonConfig        MessageType = "buttonConfig"
	TypeButtonConfigRequest MessageType = "buttonConfigRequest"

	// Legacy announcements, superseded by presence tracking. Still parsed
	// so older peers on the wire do not break newer ones.
	TypeClientJoined MessageType = "clientJoined"
	TypeClientLeft   MessageType = "clientLeft"
)

// Message is one protocol message exchanged between session peers. Variants
// marshal flat: the sender's clientId and role sit at the top level next to
// the "type" discriminant.
type Message interface {
	MessageType() MessageType
	SenderID() string
}

// GameUpdate is broadcast by the host and carries an arbitrary state patch.
type GameUpdate struct {
	ClientID  string         `json:"clientId"`
	Role      string         `json:"role"`
	GameState map[string]any `json:"gameState"`
}

func (GameUpdate) MessageType() MessageType { return TypeGameUpdate }
func (m GameUpdate) SenderID() string       { return m.ClientID }

// InputState is a single button transition.
type InputState struct {
	Button  string `json:"button"`
	Pressed bool   `json:"pressed"`
}

// PlayerInput is broadcast by controllers on every button transition.
type PlayerInput struct {
	ClientID string     `json:"clientId"`
	Role     string     `json:"role"`
	Input    InputState `json:"input"`
}

func (PlayerInput) MessageType() MessageType { return TypePlayerInput }
func (m PlayerInput) SenderID() string       { return m.ClientID }

// ButtonConfig describes one control in a controller's layout.
type ButtonConfig struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
	Color   string `json:"color,omitempty"`
}

// ButtonConfigUpdate fully replaces the controller layout. Host to all.
type ButtonConfigUpdate struct {
	ClientID string         `json:"clientId"`
	Role     string         `json:"role"`
	Buttons  []ButtonConfig `json:"buttons"`
}

func (ButtonConfigUpdate) MessageType() MessageType { return TypeButtonConfig }
func (m ButtonConfigUpdate) SenderID() string       { return m.ClientID }

// ButtonConfigRequest asks the host to re-broadcast the current layout.
type ButtonConfigRequest struct {
	ClientID string `json:"clientId"`
	Role     string `json:"role"`
}

func (ButtonConfigRequest) MessageType() MessageType { return TypeButtonConfigRequest }
func (m ButtonConfigRequest) SenderID() string       { return m.ClientID }

// ClientJoined is the legacy join announcement.
type ClientJoined struct {
	ClientID string `json:"clientId"`
	Role     string `json:"role"`
}

func (ClientJoined) MessageType() MessageType { return TypeClientJoined }
func (m ClientJoined) SenderID() string       { return m.ClientID }

// ClientLeft is the legacy leave announcement. Role is optional here.
type ClientLeft struct {
	ClientID string `json:"clientId"`
	Role     string `json:"role,omitempty"`
}

func (ClientLeft) MessageType() MessageType { return TypeClientLeft }
func (m ClientLeft) SenderID() string       { return m.ClientID }

// Unknown preserves messages with an unrecognized discriminant. They are
// ingested like any other message and simply fail every consumer filter.
type Unknown struct {
	Type     MessageType
	ClientID string
	Raw      json.RawMessage
}

func (m Unknown) MessageType() MessageType { return m.Type }
func (m Unknown) SenderID() string         { return m.ClientID }

func (m Unknown) MarshalJSON() ([]byte, error) {
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}
	return json.Marshal(struct {
		Type     MessageType `json:"type"`
		ClientID string      `json:"clientId,omitempty"`
	}{m.Type, m.ClientID})
}

func (m GameUpdate) MarshalJSON() ([]byte, error) {
	type body GameUpdate
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		body
	}{TypeGameUpdate, body(m)})
}

func (m PlayerInput) MarshalJSON() ([]byte, error) {
	type body PlayerInput
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		body
	}{TypePlayerInput, body(m)})
}

func (m ButtonConfigUpdate) MarshalJSON() ([]byte, error) {
	type body ButtonConfigUpdate
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		body
	}{TypeButtonConfig, body(m)})
}

func (m ButtonConfigRequest) MarshalJSON() ([]byte, error) {
	type body ButtonConfigRequest
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		body
	}{TypeButtonConfigRequest, body(m)})
}

func (m ClientJoined) MarshalJSON() ([]byte, error) {
	type body ClientJoined
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		body
	}{TypeClientJoined, body(m)})
}

func (m ClientLeft) MarshalJSON() ([]byte, error) {
	type body ClientLeft
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		body
	}{TypeClientLeft, body(m)})
}

// ParseMessage decodes one wire message. Unrecognized discriminants come
// back as Unknown rather than an error; malformed JSON is an error.
func ParseMessage(data []byte) (Message, error) {
	var probe struct {
		Type     MessageType `json:"type"`
		ClientID string      `json:"clientId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	switch probe.Type {
	case TypeGameUpdate:
		var m GameUpdate
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", probe.Type, err)
		}
		return m, nil
	case TypePlayerInput:
		var m PlayerInput
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", probe.Type, err)
		}
		return m, nil
	case TypeButtonConfig:
		var m ButtonConfigUpdate
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", probe.Type, err)
		}
		return m, nil
	case TypeButtonConfigRequest:
		var m ButtonConfigRequest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", probe.Type, err)
		}
		return m, nil
	case TypeClientJoined:
		var m ClientJoined
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", probe.Type, err)
		}
		return m, nil
	case TypeClientLeft:
		var m ClientLeft
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", probe.Type, err)
		}
		return m, nil
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Unknown{Type: probe.Type, ClientID: probe.ClientID, Raw: raw}, nil
	}
}
