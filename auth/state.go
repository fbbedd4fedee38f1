package auth

import (
	"crypto/subtle"
	"sync"

	"github.com/pkg/errors"
)

// PasswordAuthentication holds the credentials answering a challenge.
type PasswordAuthentication struct {
	UserID   []byte
	Password []byte
}

// Authenticator supplies credentials for a session.
type Authenticator interface {
	// OnAuthenticationChallenge is called when the peer challenges us.
	// Returning nil credentials declines the challenge.
	OnAuthenticationChallenge(realm string, userIDRequired, fullAccess bool) (*PasswordAuthentication, error)
	// OnAuthenticationResponse returns the password expected of userID
	// when verifying the peer's answer to our challenge. Returning a nil
	// password fails verification.
	OnAuthenticationResponse(userID []byte) ([]byte, error)
}

// StaticAuthenticator answers every challenge with fixed credentials,
// and expects the same password from any peer it challenges.
type StaticAuthenticator struct {
	UserID   []byte
	Password []byte
}

// OnAuthenticationChallenge implements Authenticator
func (s StaticAuthenticator) OnAuthenticationChallenge(string, bool, bool) (*PasswordAuthentication, error) {
	return &PasswordAuthentication{UserID: s.UserID, Password: s.Password}, nil
}

// OnAuthenticationResponse implements Authenticator
func (s StaticAuthenticator) OnAuthenticationResponse([]byte) ([]byte, error) {
	return s.Password, nil
}

// State is the authentication state of one session: its Authenticator
// and the nonce of the challenge we have outstanding, if any.
type State struct {
	Authenticator Authenticator

	mu    sync.Mutex
	nonce []byte
}

// SetNonce records the nonce of a challenge sent to the peer,
// replacing any previous one.
func (s *State) SetNonce(nonce []byte) {
	s.mu.Lock()
	s.nonce = append([]byte{}, nonce...)
	s.mu.Unlock()
}

// Clear forgets the outstanding challenge
func (s *State) Clear() {
	s.mu.Lock()
	s.nonce = nil
	s.mu.Unlock()
}

// Pending returns true while a challenge we sent awaits its response
func (s *State) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce != nil
}

// Respond answers the peer's challenge (an AuthChallenge header value)
// using the Authenticator, returning the AuthResponse header value.
func (s *State) Respond(challenge []byte) ([]byte, error) {
	c, err := ParseChallenge(challenge)
	if err != nil {
		return nil, err
	}
	if s.Authenticator == nil {
		return nil, errors.WithStack(ErrNoAuthenticator)
	}
	creds, err := s.Authenticator.OnAuthenticationChallenge(c.Realm, c.UserIDRequired, c.FullAccess)
	switch {
	case err != nil:
		return nil, errors.Wrap(err, "authenticator")
	case creds == nil:
		return nil, errors.WithStack(ErrNoCredentials)
	}
	r := Response{Digest: Digest(c.Nonce[:], creds.Password), Nonce: c.Nonce[:]}
	if c.UserIDRequired || len(creds.UserID) > 0 {
		r.UserID = creds.UserID
	}
	return r.Encode()
}

// Verify checks the peer's response (an AuthResponse header value)
// against the outstanding challenge, returning whether it matched and
// the user ID the peer presented. The outstanding challenge is
// cleared either way.
func (s *State) Verify(response []byte) (ok bool, userID []byte) {
	s.mu.Lock()
	nonce := s.nonce
	s.nonce = nil
	s.mu.Unlock()
	r, err := ParseResponse(response)
	if err != nil || nonce == nil || s.Authenticator == nil {
		return false, r.UserID
	}
	password, err := s.Authenticator.OnAuthenticationResponse(r.UserID)
	if err != nil || password == nil {
		return false, r.UserID
	}
	want := Digest(nonce, password)
	return subtle.ConstantTimeCompare(want[:], r.Digest[:]) == 1, r.UserID
}

var _ Authenticator = StaticAuthenticator{}
