// gatewayctl: command-line client for the security gateway. Sends a
// single transport request per invocation and prints the JSON response,
// the same one-shot shape the rest of the fleet's control tool uses.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gao-OS/strata-gateway/internal/transport"
)

var (
	addr  string
	token string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gatewayctl",
		Short: "Command-line client for the security gateway",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:8081", "gateway transport address")
	root.PersistentFlags().StringVar(&token, "token", "", "PASETO bearer token")

	root.AddCommand(healthCmd())
	root.AddCommand(execCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(streamCmd())
	root.AddCommand(cancelCmd())
	return root
}

func client() *transport.Client {
	return transport.NewClient(addr, 10*time.Second)
}

func printResponse(resp *transport.Response) error {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !resp.OK {
		return fmt.Errorf("request failed")
	}
	return nil
}

func healthCmd() *cobra.Command {
	var includeStats bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check gateway liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Call(transport.MethodHealth, token, map[string]any{"include_stats": includeStats})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	cmd.Flags().BoolVar(&includeStats, "stats", false, "include uptime and error-count stats")
	return cmd
}

func execCmd() *cobra.Command {
	var (
		args        []string
		cwd         string
		timeoutSecs uint32
	)
	cmd := &cobra.Command{
		Use:   "exec <command>",
		Short: "Submit a command for sandboxed execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			params := map[string]any{
				"command":      positional[0],
				"args":         toAnySlice(args),
				"cwd":          cwd,
				"timeout_secs": timeoutSecs,
			}
			resp, err := client().Call(transport.MethodExecuteCommand, token, params)
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	cmd.Flags().StringSliceVar(&args, "arg", nil, "argument to pass to the command (repeatable)")
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for the command")
	cmd.Flags().Uint32Var(&timeoutSecs, "timeout", 30, "wall-clock timeout in seconds")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Get a task's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Call(transport.MethodGetTaskStatus, token, map[string]any{"task_id": args[0]})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
}

func streamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream <task-id>",
		Short: "Stream a running task's output until it completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().CallStream(transport.MethodStreamTaskOutput, token, map[string]any{"task_id": args[0]}, func(resp *transport.Response) error {
				return printResponse(resp)
			})
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a running or queued task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Call(transport.MethodCancelTask, token, map[string]any{"task_id": args[0]})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
