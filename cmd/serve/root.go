package serve

import (
	"errors"
	"fmt"
	cmdUtil "github.com/ValentinKolb/kvsys/cmd/util"
	"github.com/ValentinKolb/kvsys/lib/store/lstore"
	"github.com/ValentinKolb/kvsys/lib/wal"
	"github.com/ValentinKolb/kvsys/rpc/common"
	"github.com/ValentinKolb/kvsys/rpc/serializer"
	"github.com/ValentinKolb/kvsys/rpc/server"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os/signal"
	"syscall"
)

var Logger = logger.GetLogger("rpc")

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the kvsys server",
		Long:    `Start the kvsys server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is KVSYS_<flag> (e.g. KVSYS_DB_FILE=data.kv)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "127.0.0.1:1972", cmdUtil.WrapString("The address on which the server will listen (host:port for tcp, socket path for unix)"))

	key = "transport"
	ServeCmd.PersistentFlags().String(key, common.TransportTCP, cmdUtil.WrapString("transport to use (tcp, unix)"))

	key = "threads"
	ServeCmd.PersistentFlags().Int(key, 4, cmdUtil.WrapString("Number of worker threads, each serving one connection at a time"))

	key = "db-file"
	ServeCmd.PersistentFlags().String(key, "data.kv", cmdUtil.WrapString("Path of the write-ahead log. It is replayed on startup and created if it does not exist"))

	key = "wal-sync"
	ServeCmd.PersistentFlags().String(key, wal.SyncAlways.String(), cmdUtil.WrapString("When to fsync the write-ahead log (always = after every record, none = leave it to the OS)"))

	key = "accept-fail-fast"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Stop the server when accepting a connection fails. If disabled the error is logged and the server keeps accepting"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the prometheus metrics endpoint (e.g. 127.0.0.1:9090), empty to disable"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY on accepted connections (only for tcp)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval of accepted connections (in seconds, 0 = system default, only for tcp)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Transport = viper.GetString("transport")
	serveCmdConfig.Threads = viper.GetInt("threads")
	serveCmdConfig.AcceptFailFast = viper.GetBool("accept-fail-fast")
	serveCmdConfig.DBFile = viper.GetString("db-file")
	serveCmdConfig.WALSync = viper.GetString("wal-sync")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.TCPNoDelay = viper.GetBool("tcp-nodelay")
	serveCmdConfig.TCPKeepAliveSec = viper.GetInt("tcp-keepalive")

	if _, err := wal.ParseSyncMode(serveCmdConfig.WALSync); err != nil {
		return err
	}
	return serveCmdConfig.Validate()
}

// run opens the store, starts the server and blocks until it stops or a signal is received
func run(cmd *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	fmt.Println(serveCmdConfig.String())

	t, err := cmdUtil.GetServerTransport(serveCmdConfig.Transport)
	if err != nil {
		return err
	}

	// open the store, this replays the write-ahead log
	syncMode, _ := wal.ParseSyncMode(serveCmdConfig.WALSync)
	opts := lstore.DefaultOptions()
	opts.SyncMode = syncMode

	st, err := lstore.Open(serveCmdConfig.DBFile, opts)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", serveCmdConfig.DBFile, err)
	}
	if info, err := st.GetInfo(); err == nil {
		Logger.Infof("store ready: %d keys, %d tombstones, %d records replayed", info.Keys, info.Tombstones, info.Replayed)
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		serializer.NewBinarySerializer(),
		st,
	)

	if err := serv.Listen(); err != nil {
		_ = st.Close()
		return err
	}
	Logger.Infof("listening on %s (%s)", serv.Addr(), serveCmdConfig.Transport)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- serv.Serve()
	}()

	select {
	case <-ctx.Done():
		Logger.Infof("received signal, shutting down")
		return errors.Join(serv.Close(), <-serveErr)
	case err := <-serveErr:
		if closeErr := serv.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return err
	}
}

