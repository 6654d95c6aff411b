package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/aretw0/tether/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve a scripted workflow backend",
	Long: `Starts a local backend implementing the workflow endpoints. Every run plays the
given YAML script (or the built-in VM provisioning demo), pausing on its
interrupts and asking again for fields a resume leaves out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		addr, _ := cmd.Flags().GetString("addr")
		scriptPath, _ := cmd.Flags().GetString("script")
		validate, _ := cmd.Flags().GetBool("validate")

		script := httpAdapter.DefaultScript()
		if scriptPath != "" {
			if script, err = httpAdapter.LoadScript(scriptPath); err != nil {
				return err
			}
		}

		opts := []httpAdapter.ServerOption{httpAdapter.WithServerLogger(logger)}
		if validate {
			contract, err := httpAdapter.NewContract(cmd.Context())
			if err != nil {
				return err
			}
			opts = append(opts, httpAdapter.WithRequestValidation(contract))
		}
		backend, err := httpAdapter.NewServer(script, opts...)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           backend.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("scripted backend listening", "addr", addr, "script", script.Name)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			// Give open streams a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "error", err)
				return srv.Close()
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(mockCmd)

	mockCmd.Flags().String("addr", ":8000", "Address to listen on")
	mockCmd.Flags().String("script", "", "YAML script to play (default: built-in demo)")
	mockCmd.Flags().Bool("validate", false, "Reject requests that violate the OpenAPI contract")
}
