// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"bichat/cli/internal/bridge"
	"bichat/cli/internal/bridge/grpcclient"
	"bichat/cli/internal/bridge/wire"
	"bichat/cli/internal/logging"
	"bichat/cli/internal/orchestrator"
	"bichat/cli/internal/render"
	"bichat/cli/internal/terminal"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	chatRemote   bool
	chatAddr     string
	chatInsecure bool
	chatRows     int
)

// conversation is one chat session, local or remote.
type conversation interface {
	Ask(ctx context.Context, question string) (wire.Reply, error)
	Reset(ctx context.Context) error
}

type localConversation struct {
	sess *orchestrator.Session
	spin *render.Spinner
	rows int
}

func (c *localConversation) Ask(ctx context.Context, question string) (wire.Reply, error) {
	res := c.sess.Ask(ctx, question)
	c.spin.Stop()
	return wire.NewReply(res, c.rows), nil
}

func (c *localConversation) Reset(context.Context) error {
	c.sess.Reset()
	return nil
}

type remoteConversation struct {
	br bridge.Bridge
	id string
}

func (c *remoteConversation) Ask(ctx context.Context, question string) (wire.Reply, error) {
	return c.br.Ask(ctx, c.id, question)
}

func (c *remoteConversation) Reset(ctx context.Context) error {
	return c.br.Reset(ctx, c.id)
}

// chatCmd runs an interactive session where follow-up questions continue the
// same Genie conversation.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive BI chat session",
	Long: `The chat command reads questions line by line. Follow-up questions continue the
same Genie conversation until you type /reset.

Commands:
  /reset   start a new conversation
  /sql     toggle SQL display
  /exit    leave (also: exit, quit, Ctrl+D)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		conv, closeConv, err := openConversation()
		if err != nil {
			return err
		}
		defer closeConv()

		interactive := terminal.IsInteractive()
		if interactive {
			pterm.Println(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint("bichat"), pterm.NewStyle(pterm.FgGray).Sprint("ask a business question, /exit to leave"))
		}
		return chatLoop(ctx, bufio.NewReader(os.Stdin), conv, interactive)
	},
}

func openConversation() (conversation, func(), error) {
	if chatRemote {
		addr := chatAddr
		if addr == "" {
			addr = cfg.Bridge.Addr
		}
		if addr == "" {
			return nil, nil, errors.New("no bridge address; pass --addr or set BICHAT_BRIDGE_ADDR")
		}
		br, err := bridge.Dial(addr, grpcclient.Options{Token: cfg.Bridge.Token, Insecure: chatInsecure})
		if err != nil {
			return nil, nil, err
		}
		return &remoteConversation{br: br, id: uuid.NewString()}, func() { _ = br.Close() }, nil
	}

	spin := render.NewSpinner()
	var obs orchestrator.Observer
	if terminal.IsInteractive() {
		obs = spin
	}
	o, err := newOrchestrator(cfg, logger, obs)
	if err != nil {
		return nil, nil, err
	}
	return &localConversation{sess: orchestrator.NewSession(o), spin: spin, rows: chatRows}, func() {}, nil
}

func chatLoop(ctx context.Context, in *bufio.Reader, conv conversation, interactive bool) error {
	opts := render.Options{ShowPath: verbose}
	for {
		if ctx.Err() != nil {
			return nil
		}
		if interactive {
			pterm.Print(pterm.NewStyle(pterm.FgGreen, pterm.Bold).Sprint("? "))
		}
		line, err := terminal.ReadLine(in)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "/exit", "exit", "quit":
			return nil
		case "/reset":
			if err := conv.Reset(ctx); err != nil {
				pterm.Error.Println(logging.FormatBridgeError(err))
				continue
			}
			pterm.Info.Println("Started a new conversation")
			continue
		case "/sql":
			opts.ShowSQL = !opts.ShowSQL
			continue
		}

		reply, err := conv.Ask(ctx, line)
		if err != nil {
			pterm.Error.Println(logging.FormatBridgeError(err))
			continue
		}
		render.Reply(os.Stdout, reply, opts)
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVar(&chatRemote, "remote", false, "Chat through a 'bichat serve' instance")
	chatCmd.Flags().StringVar(&chatAddr, "addr", "", "Bridge address for --remote (default bridge.addr)")
	chatCmd.Flags().BoolVar(&chatInsecure, "insecure", false, "Connect to the bridge without TLS")
	chatCmd.Flags().IntVar(&chatRows, "rows", 20, "Maximum rows to display")
}
