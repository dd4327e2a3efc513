package util

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"github.com/ValentinKolb/kvsys/lib/kv"
	"github.com/ValentinKolb/kvsys/rpc/common"
	"github.com/ValentinKolb/kvsys/rpc/transport"
	"github.com/ValentinKolb/kvsys/rpc/transport/tcp"
	"github.com/ValentinKolb/kvsys/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (KVSYS_<FLAG>)
	EnvPrefix = "kvsys"

	// hexPrefix marks a command line argument as hex encoded
	hexPrefix = "0x"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads the env files and configures viper to read KVSYS_* variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "endpoint"
	cmd.PersistentFlags().String(key, "127.0.0.1:1972", WrapString("The address of the kvsys server (host:port for tcp, socket path for unix)"))

	key = "transport"
	cmd.PersistentFlags().String(key, common.TransportTCP, WrapString("transport to use (tcp, unix)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of a single request (0 = no timeout)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY on the connection (only for tcp)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Endpoint:      viper.GetString("endpoint"),
		Transport:     viper.GetString("transport"),
		TimeoutSecond: viper.GetInt("timeout"),
		TCPNoDelay:    viper.GetBool("tcp-nodelay"),
	}
}

// GetClientTransport creates the client transport with the given name
func GetClientTransport(name string) (transport.IRPCClientTransport, error) {
	switch name {
	case common.TransportTCP:
		return tcp.NewTCPClientTransport(), nil
	case common.TransportUnix:
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", name)
	}
}

// GetServerTransport creates the server transport with the given name
func GetServerTransport(name string) (transport.IRPCServerTransport, error) {
	switch name {
	case common.TransportTCP:
		return tcp.NewTCPServerTransport(), nil
	case common.TransportUnix:
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", name)
	}
}

// --------------------------------------------------------------------------
// Argument parsing
// --------------------------------------------------------------------------

// ParseKeyArg converts a command line argument into a key. Arguments starting with
// 0x are hex decoded, everything else is taken as raw bytes. Short keys are zero padded.
func ParseKeyArg(arg string) (kv.Key, error) {
	b, err := decodeArg(arg)
	if err != nil {
		return kv.Key{}, err
	}
	return kv.PadKey(b)
}

// ParseValueArg converts a command line argument into a value (see ParseKeyArg)
func ParseValueArg(arg string) (*kv.Value, error) {
	b, err := decodeArg(arg)
	if err != nil {
		return nil, err
	}
	return kv.PadValue(b)
}

func decodeArg(arg string) ([]byte, error) {
	if !strings.HasPrefix(arg, hexPrefix) {
		return []byte(arg), nil
	}
	b, err := hex.DecodeString(arg[len(hexPrefix):])
	if err != nil {
		return nil, fmt.Errorf("invalid hex argument %q: %w", arg, err)
	}
	return b, nil
}

// FormatKey formats a key for output, trailing zero padding is dropped unless asHex is set
func FormatKey(key kv.Key, asHex bool) string {
	if asHex {
		return hexPrefix + hex.EncodeToString(key.Bytes())
	}
	return string(bytes.TrimRight(key.Bytes(), "\x00"))
}

// FormatValue formats a value for output (see FormatKey)
func FormatValue(value *kv.Value, asHex bool) string {
	if asHex {
		return hexPrefix + hex.EncodeToString(value.Bytes())
	}
	return string(value.TrimZeros())
}

