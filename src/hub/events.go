package hub

import (
	"encoding/json"
	"fmt"
)

// EventType enumerates the inbound events a connection can produce.
type EventType int

const (
	EventConnect EventType = iota
	EventDisconnect
	EventMessage
	EventAudio
	EventInvalid
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventMessage:
		return "sendMessage"
	case EventAudio:
		return "sendAudio"
	case EventInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is one inbound event for a connection.
type Event struct {
	Type         EventType
	ConnectionID string

	Text  string // EventMessage
	Image string // EventMessage, EventAudio (optional webcam frame)
	Audio string // EventAudio

	// Err explains why a frame was turned into EventInvalid.
	Err error
}

// Wire names of client frames.
const (
	frameSendMessage = "sendMessage"
	frameSendAudio   = "sendAudio"
)

type inboundFrame struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Image string `json:"image"`
	Audio string `json:"audio"`
}

// ParseEvent decodes a client frame. Frames that cannot be decoded become
// EventInvalid rather than an error so the connection keeps going.
func ParseEvent(connID string, data []byte) Event {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Event{Type: EventInvalid, ConnectionID: connID, Err: fmt.Errorf("failed to decode frame: %w", err)}
	}

	switch frame.Type {
	case frameSendMessage:
		return Event{Type: EventMessage, ConnectionID: connID, Text: frame.Text, Image: frame.Image}
	case frameSendAudio:
		return Event{Type: EventAudio, ConnectionID: connID, Audio: frame.Audio, Image: frame.Image}
	case "":
		return Event{Type: EventInvalid, ConnectionID: connID, Err: fmt.Errorf("frame has no type")}
	default:
		return Event{Type: EventInvalid, ConnectionID: connID, Err: fmt.Errorf("unknown frame type %q", frame.Type)}
	}
}

// Outbound frame types.
const (
	TypeReceiveResponse      = "receiveResponse"
	TypeReceiveTranscription = "receiveTranscription"
	TypeReceiveError         = "receiveError"
)

// Outbound is a frame pushed to a connection.
type Outbound struct {
	Type string

	Text  string
	Audio []byte // encoded as base64 on the wire

	Code    string
	Message string
	Detail  string
}

// MarshalJSON writes only the fields that belong to the frame type.
func (o Outbound) MarshalJSON() ([]byte, error) {
	switch o.Type {
	case TypeReceiveError:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
			Detail  string `json:"detail,omitempty"`
		}{o.Type, o.Code, o.Message, o.Detail})
	case TypeReceiveTranscription:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{o.Type, o.Text})
	default:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Text  string `json:"text"`
			Audio []byte `json:"audio,omitempty"`
		}{o.Type, o.Text, o.Audio})
	}
}
