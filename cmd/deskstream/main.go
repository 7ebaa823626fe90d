package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskstream/deskstream/internal/config"
	"github.com/deskstream/deskstream/internal/logging"
	"github.com/deskstream/deskstream/internal/peer"
	"github.com/deskstream/deskstream/internal/signaling"
	"github.com/deskstream/deskstream/pkg/wire"
)

var log = logging.L("deskstream")

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "deskstream <address> {server|peer}",
	Short: "Peer-to-peer desktop streaming",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stdout)
		log = logging.L("deskstream")

		address, mode := args[0], args[1]
		switch mode {
		case "server":
			runServer(address)
		case "peer":
			runPeer(address, cfg)
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q, want \"server\" or \"peer\"\n", mode)
			os.Exit(1)
		}
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
	httpServer := &http.Server{Addr: address, Handler: s}

	go func() {
		log.Info("starting signaling server", "address", address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("signaling server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down signaling server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}

// runPeer is the interactive peer binary: it connects to the signaling
// server at address, prints its assigned id, and drives the stdin
// command loop documented in spec.md (`connect <peer_id>`,
// `accept [<connection_id>]`, `die`, `quit`), mirroring
// original_source/src/main.rs's command loop.
func runPeer(address string, cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := peer.New(ctx, address, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start peer: %v\n", err)
		os.Exit(1)
	}

	log.Info("connected to signaling server", "peer_id", p.OurID())
	fmt.Printf("id %s\n", p.OurID())

	var mu sync.Mutex
	var lastConnectionRequest wire.ConnectionId

	go func() {
		for ev := range p.AppEvents() {
			switch ev.Kind {
			case peer.AppEventConnectionRequest:
				mu.Lock()
				lastConnectionRequest = ev.ConnectionId
				mu.Unlock()
				fmt.Printf("connection request from %s (connection %s)\n", ev.PeerId, ev.ConnectionId)
			case peer.AppEventConnectionAccepted:
				fmt.Printf("connection accepted by %s\n", ev.PeerId)
			case peer.AppEventRemoteConnected:
				fmt.Printf("remote peer connected: %s\n", ev.PeerId)
			case peer.AppEventRemoteDisconnected:
				fmt.Printf("remote peer disconnected: %s\n", ev.PeerId)
			case peer.AppEventError:
				fmt.Printf("error for peer %s: %v\n", ev.PeerId, ev.Err)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("received interrupt, quitting")
		_ = p.Close()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		command := fields[0]
		arg := ""
		if len(fields) == 2 {
			arg = strings.TrimSpace(fields[1])
		}

		switch command {
		case "connect":
			if arg == "" {
				fmt.Fprintln(os.Stderr, "usage: connect <peer_id>")
				continue
			}
			p.ConnectToPeer(wire.PeerId(arg))

		case "accept":
			connID := wire.ConnectionId(arg)
			if connID == "" {
				mu.Lock()
				connID = lastConnectionRequest
				mu.Unlock()
			}
			if connID == "" {
				fmt.Fprintln(os.Stderr, "no pending connection request to accept")
				continue
			}
			if err := p.AcceptConnection(ctx, connID); err != nil {
				fmt.Fprintf(os.Stderr, "accept failed: %v\n", err)
			}

		case "die":
			p.Die()

		case "quit":
			_ = p.Close()
			return

		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		}
	}
}
