// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command agentctl is a reference CLI driving the agent SDK end to end:
// it spawns the agent binary over stdio, performs the handshake, creates
// one session, sends a prompt, and prints streamed assistant output.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentsdk/go-agent-sdk/client"
	"github.com/agentsdk/go-agent-sdk/transport"
)

var (
	agentPath string
	extraArgs []string
	workspace string
	timeout   time.Duration
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Drive an agent process over the SDK's JSON-RPC transport",
	}
	root.PersistentFlags().StringVar(&agentPath, "agent", "", "path to the agent executable")
	root.PersistentFlags().StringVar(&workspace, "workspace", "", "workspace path for the session")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "overall command timeout")
	root.PersistentFlags().StringArrayVar(&extraArgs, "arg", nil, "extra argument to pass to the agent executable (repeatable)")
	root.MarkPersistentFlagRequired("agent")

	root.AddCommand(promptCmd())
	root.AddCommand(modelsCmd())
	return root
}

// stdioArgs builds the agent's argument list per the CLI surface contract:
// user-supplied extra args first, then the fixed --headless --no-auto-update
// --stdio suffix.
func stdioArgs(extra []string) []string {
	args := append([]string{}, extra...)
	return append(args, "--headless", "--no-auto-update", "--stdio")
}

func newClient(ctx context.Context) *client.Client {
	factory := func(ctx context.Context) (transport.Transport, error) {
		return transport.Spawn(ctx, agentPath, stdioArgs(extraArgs))
	}
	return client.New(
		client.WithTransportFactory(factory),
		client.WithLogger(slog.Default()),
		client.WithErrorCallback(func(err error) {
			fmt.Fprintln(os.Stderr, "agentctl: error:", err)
		}),
		client.WithAutoRestart(true),
	)
}

func promptCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Create a session and send a single prompt, printing the response",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c := newClient(ctx)
			if err := c.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			defer c.Stop(context.Background())

			sess, err := c.CreateSession(ctx, client.CreateOptions{WorkspacePath: workspace})
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			defer sess.Destroy(context.Background())

			result, err := sess.SendAndWait(ctx, prompt, nil, "", timeout)
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			if result == nil {
				fmt.Println("(no response)")
				return nil
			}
			fmt.Println(result.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&prompt, "message", "", "prompt text to send")
	cmd.MarkFlagRequired("message")
	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available models",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c := newClient(ctx)
			if err := c.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			defer c.Stop(context.Background())

			models, err := c.Models(ctx, false)
			if err != nil {
				return fmt.Errorf("models.list: %w", err)
			}
			for _, m := range models {
				fmt.Printf("%s\t%s\n", m.ID, m.Name)
			}
			return nil
		},
	}
}
