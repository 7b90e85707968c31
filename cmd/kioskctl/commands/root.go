package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sourccey/kiosk-relay/internal/client"
	"github.com/sourccey/kiosk-relay/internal/config"
)

const tokenEnv = "KIOSKCTL_TOKEN"

var rootCmd = &cobra.Command{
	Use:   "kioskctl",
	Short: "Pair with and control Sourccey kiosk robots on the LAN",
	Long: `kioskctl discovers kiosk robots on the local network, pairs with one
using the six digit code shown on its screen, and sends authenticated
commands with the token it receives.

Use "kioskctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("host", "", "Robot host address (required for all commands except discover)")
	rootCmd.PersistentFlags().Int("port", config.DefaultServicePort, "Robot pairing service port")
	rootCmd.PersistentFlags().String("token", "", "Pairing token (default: $"+tokenEnv+")")
	rootCmd.PersistentFlags().Duration("timeout", config.ClientIOTimeout, "Per-request read/write timeout")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(showPairingCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sendModelCmd)
}

func newClient(cmd *cobra.Command, opts ...client.Option) (*client.Client, error) {
	host, _ := cmd.Flags().GetString("host")
	if host == "" {
		return nil, fmt.Errorf("--host is required")
	}
	port, _ := cmd.Flags().GetInt("port")
	ioTimeout, _ := cmd.Flags().GetDuration("timeout")
	opts = append([]client.Option{client.WithTimeouts(config.ClientConnectTimeout, ioTimeout)}, opts...)
	return client.New(host, port, opts...), nil
}

func tokenFrom(cmd *cobra.Command) (string, error) {
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	if token == "" {
		return "", fmt.Errorf("a token is required: pass --token or set %s", tokenEnv)
	}
	return token, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ioTimeout, _ := cmd.Flags().GetDuration("timeout")
	return context.WithTimeout(cmd.Context(), config.ClientConnectTimeout+ioTimeout+time.Second)
}
