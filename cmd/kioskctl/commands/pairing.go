package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourccey/kiosk-relay/internal/client"
	"github.com/sourccey/kiosk-relay/internal/config"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find kiosk robots on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetDuration("wait")

		robots, err := client.Discover(cmd.Context(), wait)
		if err != nil {
			return err
		}
		if len(robots) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No robots found.")
			return nil
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Found %d robot(s):\n\n", len(robots))
		for _, r := range robots {
			fmt.Fprintf(out, "  %s (%s)\n", r.RobotName, r.Nickname)
			fmt.Fprintf(out, "    host: %s  port: %d  type: %s\n", r.Host, r.ServicePort, r.RobotType)
		}
		return nil
	},
}

var pairCmd = &cobra.Command{
	Use:   "pair CODE",
	Short: "Pair with a robot using the code on its screen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		c, err := newClient(cmd, client.WithClientName(name))
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		result, err := c.Pair(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Paired with %s (%s)\n", result.RobotName, result.Nickname)
		fmt.Fprintf(out, "Token: %s\n", result.Token)
		fmt.Fprintf(out, "\nexport %s=%s\n", tokenEnv, result.Token)
		return nil
	},
}

var showPairingCmd = &cobra.Command{
	Use:   "show-pairing",
	Short: "Ask the robot to display its pairing code",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		result, err := c.RequestPairingModal(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s on %s (%s)\n", result.Message, result.RobotName, result.Nickname)
		return nil
	},
}

func init() {
	discoverCmd.Flags().Duration("wait", config.DiscoveryDefaultTimeout, "How long to collect replies")
	pairCmd.Flags().String("name", config.DefaultClientName, "Client name reported to the robot")
}
