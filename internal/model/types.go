package model

// Message kinds carried by the relay.
const (
	KindText  = "text"
	KindVoice = "voice"
	KindImage = "image"
)

// Identity represents a registered, OTP-verified user
type Identity struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	AvatarRef   string   `json:"avatarRef,omitempty"`
	Verified    bool     `json:"verified"`
	ContactIDs  []string `json:"contactIds"`
}

// Message represents one chat payload between two identities.
// Time is ms since epoch, assigned by the server on append and
// monotonically non-decreasing in insertion order.
type Message struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Kind   string `json:"kind"`
	Text   string `json:"text,omitempty"`
	Voice  string `json:"voice,omitempty"`
	Image  string `json:"image,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Time   int64  `json:"time"`
}
