package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goatkit/goatdesk/internal/chat"
	"github.com/goatkit/goatdesk/internal/render"
)

var chatCmd = &cobra.Command{
	Use:   "chat <token>",
	Short: "Open a chat session and exchange messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	token := args[0]
	sender := cfg.Sender
	if sender == "" {
		sender = "Customer"
	}

	sync := chat.NewSynchronizer(
		newGateway(), sender,
		chat.WithPollTimeout(cfg.Chat.PollTimeout),
		chat.WithHardAbort(cfg.Chat.HardAbort),
		chat.WithSendTimeout(cfg.Chat.SendTimeout),
		chat.WithInitRetries(cfg.Chat.InitAttempts, cfg.Chat.InitBackoff),
		chat.WithRetryBackoff(cfg.Chat.RetryBase, cfg.Chat.RetryMax),
	)
	defer sync.Terminate()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sync.Initialize(ctx, token); err != nil {
		return err
	}
	cmd.Print(render.Transcript(sync.Store().Snapshot()))
	cmd.Println(`type a message and press enter ("/end" ends the chat, "/quit" leaves)`)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.TrimSpace(line) {
			case "/quit":
				return nil
			case "/end":
				if err := sync.End(ctx); err != nil {
					cmd.PrintErrln("end failed:", err)
					continue
				}
				cmd.Println("chat ended")
				return nil
			default:
				if err := sync.Send(ctx, line); err != nil {
					if errors.Is(err, chat.ErrEmptyMessage) {
						continue
					}
					cmd.PrintErrln("send failed, try again:", err)
					continue
				}
			}
			cmd.Print(render.Transcript(sync.Store().Snapshot()))
		}
	}
}
