package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/goatkit/goatdesk/internal/forms"
	"github.com/goatkit/goatdesk/internal/render"
	"github.com/goatkit/goatdesk/internal/tickets"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Watch the ticket board, refreshed from the server",
	RunE:  runDashboard,
}

func runDashboard(cmd *cobra.Command, args []string) error {
	gw := newGateway()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status, err := forms.NewClient(gw).CheckAuth(ctx)
	if err != nil {
		return err
	}
	if !status.IsLoggedIn {
		return fmt.Errorf("not logged in; set GOATDESK_SESSION_COOKIE from a staff session")
	}
	cmd.Printf("logged in as %s\n", status.FirstName)

	store := tickets.NewStore()
	sync := tickets.NewSynchronizer(
		gw, store,
		tickets.WithMode(cfg.TicketMode()),
		tickets.WithInterval(cfg.Tickets.Interval),
		tickets.WithPollTimeouts(cfg.Tickets.PollTimeout, cfg.Tickets.HardAbort),
		tickets.WithBackoff(cfg.Tickets.Backoff),
	)
	sync.Start()
	defer sync.Stop()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cmd.Print("\033[H\033[2J")
			cmd.Print(render.Board(store.Snapshot()))
			if err := sync.LastError(); err != nil {
				cmd.PrintErrln("sync:", err)
			}
		}
	}
}
