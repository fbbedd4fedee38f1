package session

import (
	"time"

	"github.com/andaru/obex/auth"
	"github.com/andaru/obex/framing"
	"github.com/andaru/obex/obexerr"
)

const (
	// DefaultTimeout is the default client response timeout
	DefaultTimeout = 30 * time.Second
	// DefaultMaxAuthRetries is the default number of times a client
	// answers repeated authentication challenges to one request.
	DefaultMaxAuthRetries = 3
)

// SRMConfig configures Single Response Mode
type SRMConfig struct {
	// Enabled offers (clients) or accepts (servers) Single Response Mode
	Enabled bool `yaml:"enabled"`
	// Wait asks the peer to wait for our response to each packet,
	// which suspends Single Response Mode for the operation.
	Wait bool `yaml:"wait"`
}

// ClientConfig contains ClientSession configuration
type ClientConfig struct {
	// MaxPacketSize is the packet size proposed in CONNECT: the largest
	// packet we accept. Defaults to framing.MaxPacketSize.
	MaxPacketSize int `yaml:"max-packet-size"`
	// Timeout bounds the wait for each response. Defaults to DefaultTimeout.
	Timeout time.Duration `yaml:"timeout"`
	// MaxAuthRetries bounds automatic answers to repeated authentication
	// challenges within one request. Defaults to DefaultMaxAuthRetries.
	MaxAuthRetries int `yaml:"max-auth-retries"`
	// ReduceMTU caps the negotiated packet size at
	// framing.ReducedClientPacketSize.
	ReduceMTU bool `yaml:"reduce-mtu"`
	// SRM configures Single Response Mode
	SRM SRMConfig `yaml:"srm"`

	// Authenticator answers authentication challenges. Without one,
	// challenges from the server cannot be satisfied.
	Authenticator auth.Authenticator `yaml:"-"`
}

func (c *ClientConfig) setDefaults() {
	if c.MaxPacketSize <= 0 || c.MaxPacketSize > framing.MaxPacketSize {
		c.MaxPacketSize = framing.MaxPacketSize
	}
	if c.MaxPacketSize < framing.MinPacketSize {
		c.MaxPacketSize = framing.MinPacketSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAuthRetries <= 0 {
		c.MaxAuthRetries = DefaultMaxAuthRetries
	}
}

// ServerConfig contains ServerSession configuration
type ServerConfig struct {
	// MaxPacketSize is the largest packet the server accepts, and the
	// ceiling applied to a client's proposal. Defaults to
	// framing.MaxPacketSize.
	MaxPacketSize int `yaml:"max-packet-size"`
	// SRM configures Single Response Mode
	SRM SRMConfig `yaml:"srm"`

	// Authenticator answers challenges from clients and supplies the
	// passwords used to verify clients' responses to our challenges.
	Authenticator auth.Authenticator `yaml:"-"`
	// OnReply, if set, is called for each response packet sent
	OnReply func(op framing.Opcode, code obexerr.Code) `yaml:"-"`
}

func (c *ServerConfig) setDefaults() {
	if c.MaxPacketSize <= 0 || c.MaxPacketSize > framing.MaxPacketSize {
		c.MaxPacketSize = framing.MaxPacketSize
	}
	if c.MaxPacketSize < framing.MinPacketSize {
		c.MaxPacketSize = framing.MinPacketSize
	}
}
