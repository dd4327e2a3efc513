package cmd

import (
	"fmt"
	"github.com/ValentinKolb/kvsys/cmd/kv"
	"github.com/ValentinKolb/kvsys/cmd/serve"
	"github.com/ValentinKolb/kvsys/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kvsys",
		Short: "persistent key-value store server",
		Long: fmt.Sprintf(`kvsys (v%s)

A single-node key-value store with fixed-size keys (8 bytes) and
values (256 bytes). Every mutation is recorded in a write-ahead log
before it becomes visible, clients talk to the server over a chunked
binary protocol on tcp or unix sockets.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kvsys",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kvsys v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
