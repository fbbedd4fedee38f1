package obexerr

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// Code is an OBEX response code. Response codes are sent with the
// final bit (0x80) set; all the constants below include it.
type Code byte

const (
	// Continue indicates the request was accepted and more packets follow
	Continue Code = 0x90

	// OK family (HTTP 2xx)
	OK               Code = 0xA0
	Created          Code = 0xA1
	Accepted         Code = 0xA2
	NotAuthoritative Code = 0xA3
	NoContent        Code = 0xA4
	ResetContent     Code = 0xA5
	PartialContent   Code = 0xA6

	// redirection family (HTTP 3xx)
	MultipleChoices  Code = 0xB0
	MovedPermanently Code = 0xB1
	MovedTemporarily Code = 0xB2
	SeeOther         Code = 0xB3
	NotModified      Code = 0xB4
	UseProxy         Code = 0xB5

	// client error family (HTTP 4xx)
	BadRequest        Code = 0xC0
	Unauthorized      Code = 0xC1
	PaymentRequired   Code = 0xC2
	Forbidden         Code = 0xC3
	NotFound          Code = 0xC4
	MethodNotAllowed  Code = 0xC5
	NotAcceptable     Code = 0xC6
	ProxyAuthRequired Code = 0xC7
	RequestTimeout    Code = 0xC8
	Conflict          Code = 0xC9
	Gone              Code = 0xCA
	LengthRequired    Code = 0xCB
	PreconditionFail  Code = 0xCC
	EntityTooLarge    Code = 0xCD
	RequestTooLarge   Code = 0xCE
	UnsupportedType   Code = 0xCF

	// server error family (HTTP 5xx)
	InternalError      Code = 0xD0
	NotImplemented     Code = 0xD1
	BadGateway         Code = 0xD2
	ServiceUnavailable Code = 0xD3
	GatewayTimeout     Code = 0xD4
	VersionUnsupported Code = 0xD5

	// database family (OBEX specific)
	DatabaseFull   Code = 0xE0
	DatabaseLocked Code = 0xE1
)

var codeNames = map[Code]string{
	Continue:           "continue",
	OK:                 "ok",
	Created:            "created",
	Accepted:           "accepted",
	NotAuthoritative:   "non-authoritative",
	NoContent:          "no-content",
	ResetContent:       "reset-content",
	PartialContent:     "partial-content",
	MultipleChoices:    "multiple-choices",
	MovedPermanently:   "moved-permanently",
	MovedTemporarily:   "moved-temporarily",
	SeeOther:           "see-other",
	NotModified:        "not-modified",
	UseProxy:           "use-proxy",
	BadRequest:         "bad-request",
	Unauthorized:       "unauthorized",
	PaymentRequired:    "payment-required",
	Forbidden:          "forbidden",
	NotFound:           "not-found",
	MethodNotAllowed:   "method-not-allowed",
	NotAcceptable:      "not-acceptable",
	ProxyAuthRequired:  "proxy-authentication-required",
	RequestTimeout:     "request-timeout",
	Conflict:           "conflict",
	Gone:               "gone",
	LengthRequired:     "length-required",
	PreconditionFail:   "precondition-failed",
	EntityTooLarge:     "entity-too-large",
	RequestTooLarge:    "request-too-large",
	UnsupportedType:    "unsupported-media-type",
	InternalError:      "internal-error",
	NotImplemented:     "not-implemented",
	BadGateway:         "bad-gateway",
	ServiceUnavailable: "service-unavailable",
	GatewayTimeout:     "gateway-timeout",
	VersionUnsupported: "version-not-supported",
	DatabaseFull:       "database-full",
	DatabaseLocked:     "database-locked",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(0x%02X)", byte(c))
}

func (c Code) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Code) UnmarshalText(b []byte) error {
	b = bytes.TrimSpace(b)
	for code, name := range codeNames {
		if name == string(b) {
			*c = code
			return nil
		}
	}
	return errors.New("unknown value")
}

// Valid returns true if c lies within one of the defined response
// code ranges. Continue is not a valid final response.
func (c Code) Valid() bool {
	switch {
	case c >= OK && c <= PartialContent:
	case c >= MultipleChoices && c <= UseProxy:
	case c >= BadRequest && c <= UnsupportedType:
	case c >= InternalError && c <= VersionUnsupported:
	case c >= DatabaseFull && c <= DatabaseLocked:
	default:
		return false
	}
	return true
}

// Success returns true for the OK family of response codes
func (c Code) Success() bool { return c >= OK && c <= PartialContent }

// Validate returns c if it is a valid response code, or InternalError otherwise.
func Validate(c Code) Code {
	if c.Valid() {
		return c
	}
	return InternalError
}
