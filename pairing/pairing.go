// Package pairing implements the device pairing handshake: an X25519
// identity held by the desktop, ECDH key agreement with a scanning client,
// and an expiring token registry for the resulting sessions.
package pairing

import (
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/mozhi/agent/internal/util"
)

const tokenEntropyBytes = 32

// Session is an established pairing between one client device and this
// desktop. It is immutable after creation; the store removes it on expiry
// but never mutates it.
type Session struct {
	DeviceID   string
	DeviceName string
	Token      string
	ExpiresAt  time.Time
	// Key is the raw X25519 shared secret, used directly as the AES-256-GCM
	// session key.
	Key []byte
}

// Expired reports whether the session is past its expiry at time now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Manager owns the desktop's pairing identity and the live session registry.
// It is safe for concurrent use by every connection goroutine.
type Manager struct {
	identity *memguard.Enclave
	public   [32]byte
	ttl      time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager generates the process-lifetime X25519 identity and an empty
// session registry. The private half lives in a memguard enclave.
func NewManager(ttl time.Duration) (*Manager, error) {
	kp, err := util.GenerateX25519Keypair()
	if err != nil {
		return nil, fmt.Errorf("generating pairing identity: %w", err)
	}
	// NewEnclave wipes the source slice, so the private half only ever
	// exists in locked memory after this point.
	return &Manager{
		identity: memguard.NewEnclave(kp.Private[:]),
		public:   kp.Public,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}, nil
}

// PublicKeyB64 returns the desktop public key in the wire encoding, for
// pair_ack replies and the out-of-band pairing code.
func (m *Manager) PublicKeyB64() string {
	return util.B64Encode(m.public[:])
}

// CreateSession performs key agreement with the client's public key and
// registers a new session under a fresh opaque token.
func (m *Manager) CreateSession(deviceID, deviceName, clientPublicKeyB64 string) (*Session, error) {
	raw, err := util.B64Decode(clientPublicKeyB64)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidPublicKey
	}
	var clientPub [32]byte
	copy(clientPub[:], raw)

	priv, err := m.identity.Open()
	if err != nil {
		return nil, fmt.Errorf("opening identity key: %w", err)
	}
	defer priv.Destroy()

	var privKey [32]byte
	copy(privKey[:], priv.Bytes())
	secret, err := util.SharedSecret(privKey, clientPub)
	util.WipeBytes(privKey[:])
	if err != nil {
		return nil, fmt.Errorf("key agreement: %w", err)
	}

	token, err := util.RandomToken(tokenEntropyBytes)
	if err != nil {
		return nil, fmt.Errorf("generating session token: %w", err)
	}

	session := &Session{
		DeviceID:   deviceID,
		DeviceName: deviceName,
		Token:      token,
		ExpiresAt:  time.Now().UTC().Add(m.ttl),
		Key:        secret[:],
	}

	m.mu.Lock()
	m.sessions[token] = session
	m.mu.Unlock()
	return session, nil
}

// ValidateToken returns the live session for token. Expiry is checked
// lazily: an expired entry is removed here and reported as not found.
func (m *Manager) ValidateToken(token string) (*Session, bool) {
	m.mu.RLock()
	session, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if session.Expired(time.Now().UTC()) {
		m.remove(token)
		return nil, false
	}
	return session, true
}

// Remove drops a session from the registry, wiping its key material.
func (m *Manager) Remove(token string) {
	m.remove(token)
}

// Sweep removes every expired session and returns how many were dropped.
// Lazy expiry at lookup still applies; the sweep only bounds memory held by
// tokens that are never presented again.
func (m *Manager) Sweep() int {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for token, session := range m.sessions {
		if session.Expired(now) {
			delete(m.sessions, token)
			removed++
		}
	}
	return removed
}

// Len reports the number of registered sessions, expired or not.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// remove drops the entry only. The key is not wiped here: a connection that
// bound the session before it expired may still be decrypting with it.
func (m *Manager) remove(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}
