package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cwbudde/lensrecipe/internal/server"
	"github.com/cwbudde/lensrecipe/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serve recipe building, storage and background replay over HTTP.

  POST   /api/v1/recipes              build and store a recipe
  GET    /api/v1/recipes              list stored recipes
  GET    /api/v1/recipes/:id          show a recipe
  DELETE /api/v1/recipes/:id          delete a recipe and its trace
  GET    /api/v1/recipes/:id/trace    replay trace
  POST   /api/v1/recipes/:id/replay   start a replay job
  GET    /api/v1/jobs[/:id]           job status
  DELETE /api/v1/jobs/:id             cancel a job
  GET    /api/v1/jobs/:id/stream      job progress (server-sent events)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	_ = viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	recipes, err := store.NewFSStore(dataDir())
	if err != nil {
		return fmt.Errorf("failed to create recipe store: %w", err)
	}

	srv := server.NewServer(viper.GetString("addr"), recipes)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
