package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskstream/deskstream/internal/config"
	"github.com/deskstream/deskstream/internal/logging"
	"github.com/deskstream/deskstream/internal/signaling"
)

var log = logging.L("signald")

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "signald <address>",
	Short: "Desktop streaming signaling server",
	Long:  `signald is the stateless WebSocket router that assigns peer ids and relays offers, answers, and ICE candidates between connecting peers.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stdout)
		log = logging.L("signald")
		runServer(args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/deskstream/deskstream.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(address string) {
	s := signaling.NewServer()

	httpServer := &http.Server{
		Addr:    address,
		Handler: s,
	}

	go func() {
		log.Info("starting signald", "address", address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("signald server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down signald")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("signald shutdown error", "error", err)
	}
}
