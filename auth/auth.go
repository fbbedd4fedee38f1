// Package auth implements OBEX authentication.
//
// Either peer of a session may challenge the other with a nonce. The
// challenged peer proves knowledge of a shared password by answering
// with the digest of the nonce and that password. Challenges and
// responses travel in the AuthChallenge and AuthResponse headers as
// tag-length-value triplets.
package auth

import (
	"crypto/md5"
	"crypto/rand"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	// NonceSize is the size of a challenge nonce and of a digest
	NonceSize = 16
	// MaxUserIDSize is the longest user ID a response may carry
	MaxUserIDSize = 20
	// MaxRealmSize is the longest encoded realm a challenge may carry
	MaxRealmSize = 254
)

// challenge triplet tags
const (
	tagNonce   = 0x00
	tagOptions = 0x01
	tagRealm   = 0x02
)

// response triplet tags
const (
	tagDigest = 0x00
	tagUserID = 0x01
	tagRNonce = 0x02
)

// challenge option bits
const (
	optUserID   = 0x01
	optReadOnly = 0x02
)

// realm character sets
const (
	charsetASCII   = 0x00
	charsetLatin1  = 0x01
	charsetUnicode = 0xFF
)

var (
	// ErrMalformed indicates an unparseable challenge or response
	ErrMalformed = errors.New("malformed authentication triplets")
	// ErrNoAuthenticator is returned when a challenge arrives but no
	// Authenticator was configured to answer it.
	ErrNoAuthenticator = errors.New("no authenticator to answer challenge")
	// ErrNoCredentials is returned when the Authenticator declines a challenge
	ErrNoCredentials = errors.New("authenticator supplied no credentials")
	// ErrUserIDTooLong is returned for user IDs over MaxUserIDSize bytes
	ErrUserIDTooLong = errors.New("user ID longer than 20 bytes")
	// ErrRealmTooLong is returned for realms that do not fit a triplet
	ErrRealmTooLong = errors.New("realm too long")
)

// Digest returns the response digest for nonce and password:
// MD5(nonce ":" password).
func Digest(nonce, password []byte) [NonceSize]byte {
	b := make([]byte, 0, len(nonce)+1+len(password))
	b = append(b, nonce...)
	b = append(b, ':')
	b = append(b, password...)
	return md5.Sum(b)
}

// Challenge is an authentication challenge.
type Challenge struct {
	Nonce [NonceSize]byte
	Realm string
	// UserIDRequired asks the peer to identify itself in the response
	UserIDRequired bool
	// FullAccess is false when the challenger offers read only access
	FullAccess bool
}

// NewChallenge returns a Challenge with a fresh random nonce.
func NewChallenge(realm string, userIDRequired, fullAccess bool) (c Challenge, err error) {
	c = Challenge{Realm: realm, UserIDRequired: userIDRequired, FullAccess: fullAccess}
	if _, err = rand.Read(c.Nonce[:]); err != nil {
		err = errors.Wrap(err, "challenge nonce")
	}
	return
}

// Encode returns the header value carrying c.
func (c Challenge) Encode() ([]byte, error) {
	b := appendTriplet(nil, tagNonce, c.Nonce[:])
	var opts byte
	if c.UserIDRequired {
		opts |= optUserID
	}
	if !c.FullAccess {
		opts |= optReadOnly
	}
	b = appendTriplet(b, tagOptions, []byte{opts})
	if c.Realm != "" {
		realm, err := encodeRealm(c.Realm)
		if err != nil {
			return nil, err
		}
		b = appendTriplet(b, tagRealm, realm)
	}
	return b, nil
}

// ParseChallenge decodes a challenge header value.
func ParseChallenge(b []byte) (c Challenge, err error) {
	c.FullAccess = true
	var nonce bool
	err = eachTriplet(b, func(tag byte, v []byte) error {
		switch tag {
		case tagNonce:
			if len(v) != NonceSize {
				return errors.Wrap(ErrMalformed, "challenge nonce size")
			}
			copy(c.Nonce[:], v)
			nonce = true
		case tagOptions:
			if len(v) > 0 {
				c.UserIDRequired = v[0]&optUserID != 0
				c.FullAccess = v[0]&optReadOnly == 0
			}
		case tagRealm:
			realm, rerr := decodeRealm(v)
			if rerr != nil {
				return rerr
			}
			c.Realm = realm
		}
		return nil
	})
	if err == nil && !nonce {
		err = errors.Wrap(ErrMalformed, "challenge without nonce")
	}
	return
}

// Response is an authentication response.
type Response struct {
	Digest [NonceSize]byte
	UserID []byte
	// Nonce echoes the challenge nonce being answered (optional)
	Nonce []byte
}

// Encode returns the header value carrying r.
func (r Response) Encode() ([]byte, error) {
	if len(r.UserID) > MaxUserIDSize {
		return nil, errors.WithStack(ErrUserIDTooLong)
	}
	b := appendTriplet(nil, tagDigest, r.Digest[:])
	if len(r.UserID) > 0 {
		b = appendTriplet(b, tagUserID, r.UserID)
	}
	if len(r.Nonce) > 0 {
		b = appendTriplet(b, tagRNonce, r.Nonce)
	}
	return b, nil
}

// ParseResponse decodes a response header value.
func ParseResponse(b []byte) (r Response, err error) {
	var digest bool
	err = eachTriplet(b, func(tag byte, v []byte) error {
		switch tag {
		case tagDigest:
			if len(v) != NonceSize {
				return errors.Wrap(ErrMalformed, "response digest size")
			}
			copy(r.Digest[:], v)
			digest = true
		case tagUserID:
			r.UserID = append([]byte{}, v...)
		case tagRNonce:
			r.Nonce = append([]byte{}, v...)
		}
		return nil
	})
	if err == nil && !digest {
		err = errors.Wrap(ErrMalformed, "response without digest")
	}
	return
}

func appendTriplet(b []byte, tag byte, v []byte) []byte {
	b = append(b, tag, byte(len(v)))
	return append(b, v...)
}

func eachTriplet(b []byte, f func(tag byte, v []byte) error) error {
	for len(b) > 0 {
		if len(b) < 2 || len(b) < 2+int(b[1]) {
			return errors.WithStack(ErrMalformed)
		}
		if err := f(b[0], b[2:2+int(b[1])]); err != nil {
			return err
		}
		b = b[2+int(b[1]):]
	}
	return nil
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

func encodeRealm(realm string) ([]byte, error) {
	cs := byte(charsetLatin1)
	v, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(realm))
	if err != nil {
		cs = charsetUnicode
		if v, err = utf16be.NewEncoder().Bytes([]byte(realm)); err != nil {
			return nil, errors.Wrap(err, "realm")
		}
	}
	if len(v) > MaxRealmSize {
		return nil, errors.WithStack(ErrRealmTooLong)
	}
	return append([]byte{cs}, v...), nil
}

func decodeRealm(v []byte) (string, error) {
	if len(v) == 0 {
		return "", nil
	}
	var (
		b   []byte
		err error
	)
	switch cs := v[0]; {
	case cs == charsetUnicode:
		b, err = utf16be.NewDecoder().Bytes(v[1:])
	case cs == charsetASCII && utf8.Valid(v[1:]):
		b = v[1:]
	default:
		// other ISO-8859 parts are read as Latin-1
		b, err = charmap.ISO8859_1.NewDecoder().Bytes(v[1:])
	}
	if err != nil {
		return "", errors.Wrap(ErrMalformed, err.Error())
	}
	return string(b), nil
}
