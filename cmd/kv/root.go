package kv

import (
	"github.com/ValentinKolb/kvsys/cmd/util"
	"github.com/ValentinKolb/kvsys/lib/store"
	"github.com/ValentinKolb/kvsys/rpc/client"
	"github.com/ValentinKolb/kvsys/rpc/common"
	"github.com/ValentinKolb/kvsys/rpc/serializer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcStore store.IStore

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:   "kv",
		Short: "Perform key-value store operations",
		Long: util.WrapString(`Perform key-value store operations against a running kvsys server.
Keys are at most 8 and values at most 256 bytes, shorter inputs are padded with zero bytes.
Arguments starting with 0x are hex decoded.`),
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	key := "hex"
	KeyValueCommands.PersistentFlags().Bool(key, false, util.WrapString("Print keys and values hex encoded instead of as text"))

	key = "log-level"
	KeyValueCommands.PersistentFlags().String(key, "warn", util.WrapString("LogLevel of the client (debug, info, warn, error)"))

	// Add subcommands
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(scanCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient initializes the RPC store client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	var err error
	rpcStore, err = connect(util.GetClientConfig())
	return err
}

// closeKVClient sends the close request and releases the connection
func closeKVClient(_ *cobra.Command, _ []string) error {
	if rpcStore == nil {
		return nil
	}
	return rpcStore.Close()
}

// connect opens a new connection to the configured server
func connect(config *common.ClientConfig) (store.IStore, error) {
	t, err := util.GetClientTransport(config.Transport)
	if err != nil {
		return nil, err
	}

	return client.NewRPCStore(
		*config,
		t,
		serializer.NewBinarySerializer(),
	)
}
