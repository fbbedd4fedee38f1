package main

import (
	"fmt"
	"os"
	"time"

	"github.com/andaru/obex/auth"
	"github.com/andaru/obex/session"
	"github.com/andaru/obex/transport"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// config is the obexftp configuration file. Command line flags
// override its values.
type config struct {
	// Address is the server address, or the listen address for serve
	Address string `yaml:"address"`
	// Password authenticates the peer, if set
	Password string `yaml:"password"`
	UserID   string `yaml:"user-id"`

	Client session.ClientConfig `yaml:"client"`
	Server serverConfig         `yaml:"server"`
}

type serverConfig struct {
	session.ServerConfig `yaml:",inline"`

	Root     string `yaml:"root"`
	ReadOnly bool   `yaml:"read-only"`
	Realm    string `yaml:"realm"`
	// Metrics is the listen address of the metrics endpoint
	Metrics string `yaml:"metrics"`
}

func defaultConfig() *config {
	return &config{
		Address: "localhost",
		Server:  serverConfig{Root: "."},
	}
}

// loadConfig returns the configuration read from the file at path, or
// the defaults if path is empty.
func loadConfig(path string) (*config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}
	if err = yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

// flagValues holds the values of the flags overriding the file
type flagValues struct {
	address       string
	password      string
	userID        string
	maxPacketSize int
	timeout       time.Duration
	srm           bool
	reduceMTU     bool
	root          string
	readOnly      bool
	realm         string
	metrics       string
}

// apply overrides c with the flags of fs set on the command line
func (f *flagValues) apply(c *config, fs *pflag.FlagSet) {
	fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "address":
			c.Address = f.address
		case "password":
			c.Password = f.password
		case "user-id":
			c.UserID = f.userID
		case "max-packet-size":
			c.Client.MaxPacketSize = f.maxPacketSize
			c.Server.MaxPacketSize = f.maxPacketSize
		case "timeout":
			c.Client.Timeout = f.timeout
		case "srm":
			c.Client.SRM.Enabled = f.srm
			c.Server.SRM.Enabled = f.srm
		case "reduce-mtu":
			c.Client.ReduceMTU = f.reduceMTU
		case "root":
			c.Server.Root = f.root
		case "read-only":
			c.Server.ReadOnly = f.readOnly
		case "realm":
			c.Server.Realm = f.realm
		case "metrics":
			c.Server.Metrics = f.metrics
		}
	})
}

func (c *config) authenticator() auth.Authenticator {
	if c.Password == "" {
		return nil
	}
	return auth.StaticAuthenticator{UserID: []byte(c.UserID), Password: []byte(c.Password)}
}

func (c *config) clientConfig() session.ClientConfig {
	cc := c.Client
	cc.Authenticator = c.authenticator()
	return cc
}

func (c *config) serverConfig() session.ServerConfig {
	sc := c.Server.ServerConfig
	sc.Authenticator = c.authenticator()
	return sc
}

// listenAddress returns the address serve listens on
func (c *config) listenAddress() string {
	if c.Address == "" || c.Address == "localhost" {
		return fmt.Sprintf(":%d", transport.DefaultPort)
	}
	return c.Address
}
