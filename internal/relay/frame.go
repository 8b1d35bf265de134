package relay

import (
	"encoding/json"

	"github.com/talktalk/server/internal/model"
)

// Frame kinds on the wire.
const (
	TypeAuth          = "auth"
	TypeAuthOK        = "auth_ok"
	TypeError         = "error"
	TypeUsersList     = "users_list"
	TypeAddContact    = "add_contact"
	TypeMessage       = "message"
	TypeWebRTCOffer   = "webrtc-offer"
	TypeWebRTCAnswer  = "webrtc-answer"
	TypeWebRTCIce     = "webrtc-ice"
	TypeUpdateProfile = "update_profile"
)

// Frame is the JSON envelope exchanged over a connection, discriminated by
// Type. Unused fields are omitted on the wire. SDP and Candidate are raw
// JSON: the relay forwards signalling payloads without inspecting them.
type Frame struct {
	Type       string           `json:"type"`
	IdentityID string           `json:"identityId,omitempty"`
	Identity   *model.Identity  `json:"identity,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Users      []model.Identity `json:"users,omitempty"`
	From       string           `json:"from,omitempty"`
	To         string           `json:"to,omitempty"`
	Kind       string           `json:"kind,omitempty"`
	Text       string           `json:"text,omitempty"`
	Voice      string           `json:"voice,omitempty"`
	Image      string           `json:"image,omitempty"`
	Avatar     string           `json:"avatar,omitempty"`
	Time       int64            `json:"time,omitempty"`
	Self       bool             `json:"self,omitempty"`
	Name       string           `json:"name,omitempty"`
	SDP        json.RawMessage  `json:"sdp,omitempty"`
	Candidate  json.RawMessage  `json:"candidate,omitempty"`
}

// MessageFrame wraps a stored message for delivery.
func MessageFrame(msg model.Message) Frame {
	return Frame{
		Type:   TypeMessage,
		From:   msg.From,
		To:     msg.To,
		Kind:   msg.Kind,
		Text:   msg.Text,
		Voice:  msg.Voice,
		Image:  msg.Image,
		Avatar: msg.Avatar,
		Time:   msg.Time,
	}
}
