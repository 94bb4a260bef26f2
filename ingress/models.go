package ingress

import "encoding/json"

// Message kinds carried in the envelope's type discriminator.
const (
	kindPair  = "pair"
	kindAudio = "audio"
	kindFlush = "flush"
	kindError = "error"
	kindAck   = "pair_ack"
)

// Error messages sent to clients. Cryptographic authentication failures get
// no message at all, only a closed connection.
const (
	errInvalidJSON    = "invalid_json"
	errInvalidPayload = "invalid_payload"
	errInvalidToken   = "invalid_token"
)

// envelope is the outer frame of every client message.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	// Token authenticates audio on a connection that has not paired.
	Token string `json:"token,omitempty"`
}

// pairRequest is the pairing handshake payload from the client device.
type pairRequest struct {
	DeviceID        string `json:"device_id"`
	DeviceName      string `json:"device_name"`
	ClientPublicKey string `json:"client_public_key"`
}

func (r *pairRequest) valid() bool {
	return r.DeviceID != "" && r.DeviceName != "" && r.ClientPublicKey != ""
}

// pairAck is the desktop's reply to a pairing handshake. It travels in the
// clear; token confidentiality relies on the outer transport.
type pairAck struct {
	DesktopPublicKey string `json:"desktop_public_key"`
	SessionToken     string `json:"session_token"`
	ExpiresAtUTC     string `json:"expires_at_utc"`
}

// audioFrame is one encrypted audio packet. Nonce and ciphertext are
// URL-safe base64; the ciphertext includes its authentication tag.
type audioFrame struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	SentAtMS   int64  `json:"sent_at_ms"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ackEvent struct {
	Type    string  `json:"type"`
	Payload pairAck `json:"payload"`
}
