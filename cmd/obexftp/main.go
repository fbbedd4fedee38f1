// Command obexftp serves and browses folders over OBEX on TCP.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	flags      flagValues
)

var rootCmd = &cobra.Command{
	Use:           "obexftp",
	Short:         "OBEX folder browsing client and server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Configuration file (YAML)")
	pf.StringVarP(&flags.address, "address", "a", "localhost", "Server address")
	pf.StringVar(&flags.password, "password", "", "Authentication password")
	pf.StringVar(&flags.userID, "user-id", "", "Authentication user ID")
	pf.IntVar(&flags.maxPacketSize, "max-packet-size", 0, "Largest packet accepted")
	pf.BoolVar(&flags.srm, "srm", false, "Enable Single Response Mode")
	// glog's flags (-v, -logtostderr, ...)
	pf.AddGoFlagSet(flag.CommandLine)
}

// loadCommandConfig returns the configuration for cmd: the file
// overridden by the command line.
func loadCommandConfig(cmd *cobra.Command) (*config, error) {
	c, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	flags.apply(c, cmd.Flags())
	return c, nil
}

func main() {
	// glog complains of logging before its flags are parsed
	_ = flag.CommandLine.Parse(nil)
	err := rootCmd.Execute()
	glog.Flush()
	if err != nil {
		fmt.Fprintf(os.Stderr, "obexftp: %v\n", err)
		os.Exit(1)
	}
}
