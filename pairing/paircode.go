package pairing

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/katzenpost/qrterminal"
)

// CodePayload is the out-of-band pairing aid a human transfers to the client
// device, usually by scanning it as a QR code. It is a convenience channel,
// not part of the protocol's security boundary.
type CodePayload struct {
	WSURL            string `json:"ws_url"`
	DesktopPublicKey string `json:"desktop_public_key"`
	Version          int    `json:"version"`
}

// NewCodePayload builds the pairing payload for this manager's identity.
func NewCodePayload(m *Manager, wsURL string) CodePayload {
	return CodePayload{
		WSURL:            wsURL,
		DesktopPublicKey: m.PublicKeyB64(),
		Version:          1,
	}
}

// JSON returns the payload in the form the client scanner expects.
func (p CodePayload) JSON() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding pairing payload: %w", err)
	}
	return string(b), nil
}

// RenderQR writes the payload to w as a terminal QR code followed by the
// JSON form, so it can be scanned or typed.
func (p CodePayload) RenderQR(w io.Writer) error {
	payload, err := p.JSON()
	if err != nil {
		return err
	}
	qrterminal.GenerateWithConfig(payload, qrterminal.Config{
		Level:      qrterminal.L,
		Writer:     w,
		HalfBlocks: true,
		QuietZone:  1,
	})
	fmt.Fprintf(w, "\n%s\n", payload)
	return nil
}
