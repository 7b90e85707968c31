package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourccey/kiosk-relay/internal/client"
)

// tokenCommand builds a command that sends one authenticated request and
// prints the robot's message.
func tokenCommand(use, short string, call func(*client.Client, context.Context, string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			token, err := tokenFrom(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			msg, err := call(c, ctx, token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

var (
	pingCmd   = tokenCommand("ping", "Check that the robot accepts the token", (*client.Client).Ping)
	startCmd  = tokenCommand("start", "Start the robot host process", (*client.Client).StartRobot)
	stopCmd   = tokenCommand("stop", "Stop the robot host process", (*client.Client).StopRobot)
	statusCmd = tokenCommand("status", "Print whether the robot host is started or stopped", (*client.Client).RobotStatus)
)

var sendModelCmd = &cobra.Command{
	Use:   "send-model REPO_ID MODEL_NAME",
	Short: "Ask the robot to download a model snapshot",
	Long: `Ask the robot to download a Hugging Face model snapshot into its
ai_models cache. The robot answers as soon as the job is queued; the
download itself continues in the background.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		token, err := tokenFrom(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		msg, err := c.SendModel(ctx, token, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}
