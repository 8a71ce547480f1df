// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"os"
	"strings"

	"bichat/cli/internal/bridge"
	"bichat/cli/internal/bridge/grpcclient"
	"bichat/cli/internal/bridge/wire"
	"bichat/cli/internal/logging"
	"bichat/cli/internal/model"
	"bichat/cli/internal/orchestrator"
	"bichat/cli/internal/render"
	"bichat/cli/internal/terminal"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	askRemote       bool
	askAddr         string
	askInsecure     bool
	askSession      string
	askConversation string
	askRows         int
	askShowSQL      bool
	askShowPath     bool
)

// askCmd answers a single question, locally or through a chat bridge server.
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a business question",
	Long: `The ask command sends one question to the Genie space and prints the answer,
the generated SQL (with --sql) and the result table.

With --conversation the question continues an existing Genie conversation.
With --remote the question goes to a 'bichat serve' instance instead, which keeps the
conversation for the given --session.`,
	Example: `  bichat ask "What were total sales last quarter by region?"
  bichat ask --sql --rows 50 "Top 10 customers by revenue"
  bichat ask --remote --addr bi.internal:443 --session team-a "and last year?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return errors.New("question is required")
		}
		opts := render.Options{ShowSQL: askShowSQL, ShowPath: askShowPath || verbose}

		var (
			reply wire.Reply
			err   error
		)
		if askRemote {
			reply, err = askThroughBridge(cmd.Context(), question)
			if err != nil {
				pterm.Error.Println(logging.FormatBridgeError(err))
				return errReported
			}
		} else {
			reply, err = askLocally(cmd.Context(), question)
			if err != nil {
				return err
			}
		}

		render.Reply(os.Stdout, reply, opts)
		if !reply.Success {
			return errReported
		}
		if reply.ConversationID != "" && !askRemote {
			pterm.Println(pterm.NewStyle(pterm.FgGray).Sprintf("conversation: %s (continue with --conversation)", reply.ConversationID))
		}
		return nil
	},
}

func askLocally(ctx context.Context, question string) (wire.Reply, error) {
	var spin *render.Spinner
	var obs orchestrator.Observer
	if terminal.IsInteractive() {
		spin = render.NewSpinner()
		obs = spin
	}
	o, err := newOrchestrator(cfg, logger, obs)
	if err != nil {
		return wire.Reply{}, err
	}
	var res *model.QueryResult
	if askConversation != "" {
		res = o.Continue(ctx, model.Handle(askConversation), question)
	} else {
		res = o.Query(ctx, question)
	}
	if spin != nil {
		spin.Stop()
	}
	if res.Failure != nil {
		logger.Debug("answer carries a failure", "error", res.Failure, "path", res.Path.String())
	}
	return wire.NewReply(res, askRows), nil
}

func askThroughBridge(ctx context.Context, question string) (wire.Reply, error) {
	addr := askAddr
	if addr == "" {
		addr = cfg.Bridge.Addr
	}
	if addr == "" {
		return wire.Reply{}, errors.New("no bridge address; pass --addr or set BICHAT_BRIDGE_ADDR")
	}
	br, err := bridge.Dial(addr, grpcclient.Options{Token: cfg.Bridge.Token, Insecure: askInsecure})
	if err != nil {
		return wire.Reply{}, err
	}
	defer br.Close()

	session := askSession
	if session == "" {
		session = uuid.NewString()
	}
	logger.Debug("asking through bridge", "addr", addr, "session_id", session)

	spin := render.NewSpinner()
	if terminal.IsInteractive() {
		spin.Start("Waiting for " + addr)
	}
	defer spin.Stop()
	return br.Ask(ctx, session, question)
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askRemote, "remote", false, "Send the question to a 'bichat serve' instance")
	askCmd.Flags().StringVar(&askAddr, "addr", "", "Bridge address for --remote (default bridge.addr)")
	askCmd.Flags().BoolVar(&askInsecure, "insecure", false, "Connect to the bridge without TLS")
	askCmd.Flags().StringVar(&askSession, "session", "", "Bridge session id for --remote (default: a new session)")
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "Continue an existing Genie conversation")
	askCmd.Flags().IntVar(&askRows, "rows", 20, "Maximum rows to display")
	askCmd.Flags().BoolVar(&askShowSQL, "sql", false, "Show the generated SQL")
	askCmd.Flags().BoolVar(&askShowPath, "path", false, "Show the orchestration path")
}
