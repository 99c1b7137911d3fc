package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conorfennell/retain/internal/web"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the review API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				srv := web.NewServer(a.reviews, a.db, a.logger)
				err := srv.ListenAndServe(ctx, a.cfg.HTTP.Addr, a.cfg.HTTP.ShutdownTimeout)
				if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().String("addr", ":8080", "address to listen on")
	return cmd
}
