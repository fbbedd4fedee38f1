package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/andaru/obex/folderlisting"
	"github.com/andaru/obex/ftp"
	"github.com/andaru/obex/session"
	"github.com/andaru/obex/transport"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/net/context"
)

func init() {
	f := rootCmd.PersistentFlags()
	f.DurationVar(&flags.timeout, "timeout", 0, "Response timeout")
	f.BoolVar(&flags.reduceMTU, "reduce-mtu", false, "Limit packets to 8KiB")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "ls [folder]",
			Short: "List a folder",
			Args:  cobra.MaximumNArgs(1),
			RunE: withClient(func(c *ftp.Client, args []string) error {
				var folder string
				if len(args) > 0 {
					folder = args[0]
				}
				return list(c, folder, os.Stdout)
			}),
		},
		&cobra.Command{
			Use:   "get remote [local]",
			Short: "Download a file",
			Args:  cobra.RangeArgs(1, 2),
			RunE: withClient(func(c *ftp.Client, args []string) error {
				local := path.Base(args[0])
				if len(args) > 1 {
					local = args[1]
				}
				return get(c, args[0], local)
			}),
		},
		&cobra.Command{
			Use:   "put local [remote]",
			Short: "Upload a file",
			Args:  cobra.RangeArgs(1, 2),
			RunE: withClient(func(c *ftp.Client, args []string) error {
				remote := filepath.Base(args[0])
				if len(args) > 1 {
					remote = args[1]
				}
				return put(c, args[0], remote)
			}),
		},
		&cobra.Command{
			Use:   "rm remote",
			Short: "Delete a file or empty folder",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(c *ftp.Client, args []string) error {
				name, err := enter(c, args[0])
				if err != nil {
					return err
				}
				return c.Delete(name)
			}),
		},
		&cobra.Command{
			Use:   "mkdir remote",
			Short: "Create a folder",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(c *ftp.Client, args []string) error {
				name, err := enter(c, args[0])
				if err != nil {
					return err
				}
				return c.Mkdir(name)
			}),
		},
	)
}

// withClient returns a cobra RunE function calling f with a client
// connected for the duration of the call.
func withClient(f func(c *ftp.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCommandConfig(cmd)
		if err != nil {
			return err
		}
		c, err := dial(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer c.Session().Close()
		if err = f(c, args); err != nil {
			return err
		}
		return c.Disconnect()
	}
}

// dial connects to the Folder Browsing service at cfg.Address
func dial(ctx context.Context, cfg *config) (*ftp.Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cc := cfg.clientConfig()
	timeout := cc.Timeout
	if timeout <= 0 {
		timeout = session.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	st, err := transport.Dial(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, err
	}
	s, err := session.NewClient(st, cc)
	if err != nil {
		st.Close()
		return nil, err
	}
	c := ftp.NewClient(s)
	if err = c.Connect(); err != nil {
		s.Close()
		return nil, err
	}
	glog.V(1).Infof("obexftp: connected to %s, max packet size %d", cfg.Address, s.MaxPacketSize())
	return c, nil
}

// enter changes to the folder holding the remote path p, returning
// the last element of p. Absolute paths start at the root folder.
func enter(c *ftp.Client, p string) (string, error) {
	if strings.HasPrefix(p, "/") {
		if err := c.Root(); err != nil {
			return "", err
		}
	}
	p = strings.Trim(path.Clean(p), "/")
	if p == "" || p == "." {
		return "", nil
	}
	elems := strings.Split(p, "/")
	for _, e := range elems[:len(elems)-1] {
		var err error
		if e == ".." {
			err = c.Up()
		} else {
			err = c.ChangeDir(e)
		}
		if err != nil {
			return "", errors.Wrapf(err, "%s", e)
		}
	}
	return elems[len(elems)-1], nil
}

func list(c *ftp.Client, folder string, w io.Writer) error {
	name, err := enter(c, folder)
	if err != nil {
		return err
	}
	l, err := c.ListFolder(name)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, e := range l.Entries {
		size := "-"
		if e.HasSize {
			size = fmt.Sprint(e.Size)
		}
		if e.Kind == folderlisting.KindFolder {
			size = "<dir>"
		}
		modified := ""
		if !e.Modified.IsZero() {
			modified = e.Modified.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Permissions, size, modified, e.Name)
	}
	return tw.Flush()
}

func get(c *ftp.Client, remote, local string) (err error) {
	name, err := enter(c, remote)
	if err != nil {
		return err
	}
	f, err := os.Create(local)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(local)
		}
	}()
	n, err := c.Get(name, f)
	if err == nil {
		glog.V(1).Infof("obexftp: received %s (%d bytes)", remote, n)
	}
	return err
}

func put(c *ftp.Client, local, remote string) error {
	f, err := os.Open(local)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return errors.WithStack(err)
	}
	name, err := enter(c, remote)
	if err != nil {
		return err
	}
	return c.Put(name, f, fi.Size())
}
