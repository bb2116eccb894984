package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrydev/quarry/pkg/mirror"
)

// mirrorCommand creates the mirror command: fetch the closure for the
// named gems, then serve it over the registry wire protocol.
func (c *CLI) mirrorCommand() *cobra.Command {
	var (
		addr    string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "mirror NAME...",
		Short: "Serve fetched metadata as a local registry mirror",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := c.fetchIndex(cmd.Context(), args, noCache)
			if err != nil {
				return err
			}
			printSuccess("Mirroring %d specs on %s", index.Size(), addr)

			srv := &http.Server{
				Addr:    addr,
				Handler: mirror.NewServer(index, c.Logger).Handler(),
			}

			go func() {
				<-cmd.Context().Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8808", "listen address")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the artifact cache")
	return cmd
}
