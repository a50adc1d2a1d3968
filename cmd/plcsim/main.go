// cmd/plcsim/main.go runs the gateway against simulated machines and
// prints the broadcast stream as JSON lines.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfreeman451/lineradar/pkg/broadcast"
	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/gateway"
	"github.com/mfreeman451/lineradar/pkg/logger"
	"github.com/mfreeman451/lineradar/pkg/poller"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "cmd/plcsim/plcsim.json", "Path to config file")
	duration := flag.Duration("duration", time.Minute, "How long to run, 0 runs until interrupted")
	faultEvery := flag.Int("fault-every", 60, "Reads between simulated faults, 0 disables faults")
	faultFor := flag.Int("fault-for", 10, "Reads a simulated fault stays active")
	serve := flag.Bool("serve", false, "Also serve the HTTP API on listen_addr")
	flag.Parse()

	var cfg config.Config
	if err := config.LoadAndValidate(*configPath, &cfg); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// events go to stdout, logs to stderr
	l, err := logger.New(cfg.Log.Level, "console", "plcsim")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)

		defer cancel()
	}

	opts := []gateway.Option{
		gateway.WithReaderFactory(poller.NewSimFactory(cfg.Equipment,
			poller.MachineProfile{FaultEvery: *faultEvery, FaultDuration: *faultFor})),
	}

	if !*serve {
		opts = append(opts, gateway.WithoutAPI())
	}

	gw, err := gateway.New(ctx, &cfg, l, opts...)
	if err != nil {
		l.Fatal("Failed to build gateway", zap.Error(err))
	}

	conn, err := tap(gw, &cfg)
	if err != nil {
		l.Fatal("Failed to subscribe", zap.Error(err))
	}

	if err := gw.Start(ctx); err != nil {
		l.Fatal("Failed to start gateway", zap.Error(err))
	}

	printEvents(ctx, conn, json.NewEncoder(os.Stdout), l)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout))
	defer cancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		l.Error("Shutdown failed", zap.Error(err))
	}
}

// tap subscribes an in-process connection to every configured line.
func tap(gw *gateway.Gateway, cfg *config.Config) (*broadcast.Conn, error) {
	conn, err := gw.Broadcast().Register("plcsim", "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)

	for _, eq := range cfg.Equipment {
		if seen[eq.LineID] {
			continue
		}

		seen[eq.LineID] = true

		if err := gw.Broadcast().Subscribe(conn.ID(), broadcast.Scope{Kind: broadcast.ScopeLine, Value: eq.LineID}); err != nil {
			return nil, err
		}
	}

	return conn, nil
}

func printEvents(ctx context.Context, conn *broadcast.Conn, enc *json.Encoder, l *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			l.Warn("event tap disconnected", zap.Uint64("dropped", conn.Dropped()))
			return
		case <-conn.Ready():
			for _, ev := range conn.Drain() {
				if err := enc.Encode(ev); err != nil {
					l.Error("Failed to write event", zap.Error(err))
					return
				}
			}
		}
	}
}
