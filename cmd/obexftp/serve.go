package main

import (
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/andaru/obex/ftp"
	"github.com/andaru/obex/session"
	"github.com/andaru/obex/transport"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/net/context"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a folder",
	Long:  "Serve a folder to Folder Browsing clients, one session per TCP connection.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&flags.root, "root", ".", "Folder to serve")
	f.BoolVar(&flags.readOnly, "read-only", false, "Refuse changes to the folder")
	f.StringVar(&flags.realm, "realm", "", "Authenticate clients, naming this realm")
	f.StringVar(&flags.metrics, "metrics", "", "Listen address of the Prometheus metrics endpoint")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := loadCommandConfig(cmd)
	if err != nil {
		return err
	}
	if fi, err := os.Stat(c.Server.Root); err != nil || !fi.IsDir() {
		return errors.Errorf("root %q is not a folder", c.Server.Root)
	}
	if c.Server.Realm != "" && c.Password == "" {
		return errors.New("authenticating clients requires a password")
	}
	ln, err := net.Listen("tcp", c.listenAddress())
	if err != nil {
		return errors.WithStack(err)
	}
	glog.Infof("obexftp: serving %s on %s", c.Server.Root, ln.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, ln, c, newMetrics())
}

// serve accepts connections on ln until ctx is done, then closes
// the listener and all sessions.
func serve(ctx context.Context, ln net.Listener, c *config, m *metrics) error {
	g, ctx := errgroup.WithContext(ctx)
	if c.Server.Metrics != "" {
		hs := &http.Server{Addr: c.Server.Metrics, Handler: m.handler()}
		g.Go(func() error {
			if err := hs.ListenAndServe(); err != http.ErrServerClosed {
				return errors.Wrap(err, "metrics")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return hs.Close()
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "accept")
			}
			if err = serveConn(ctx, conn, c, m); err != nil {
				glog.Warningf("obexftp: %s: %v", conn.RemoteAddr(), err)
				conn.Close()
			}
		}
	})
	return g.Wait()
}

// serveConn starts a session for conn, closed when ctx is done
func serveConn(ctx context.Context, conn net.Conn, c *config, m *metrics) error {
	h := ftp.NewServer(c.Server.Root)
	h.ReadOnly = c.Server.ReadOnly
	h.Realm = c.Server.Realm
	sc := c.serverConfig()
	sc.OnReply = m.onReply
	m.TotalSessions.Inc()
	m.ActiveSessions.Inc()
	s, err := session.NewServer(transport.NewStream(conn), h, sc)
	if err != nil {
		m.ActiveSessions.Dec()
		return err
	}
	glog.V(1).Infof("obexftp: session from %s", conn.RemoteAddr())
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.Done():
		}
		m.ActiveSessions.Dec()
		glog.V(1).Infof("obexftp: session from %s ended", conn.RemoteAddr())
	}()
	return nil
}
