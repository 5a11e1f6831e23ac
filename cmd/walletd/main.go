// Command walletd wires the Storage Provider, Key Deriver, chain services,
// Signer, Wallet façade, and Monitor into one process and serves health and
// metrics endpoints (grounded on the teacher's main.go: flag parse →
// config.Load → wire collaborators → HTTP mux → goroutine-served listener →
// signal-driven graceful shutdown).
//
// No JSON-RPC method-dispatch endpoint is served here: the wire framing a
// remote Storage Client would use to reach this process is named in
// spec.md §1 as an out-of-scope external collaborator (only its contract,
// spec.md §6.5, is documented). A caller embeds internal/wallet.Wallet
// directly or fronts it with its own transport.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/bsv-wallet-toolbox/internal/config"
	"github.com/certen/bsv-wallet-toolbox/internal/database"
	"github.com/certen/bsv-wallet-toolbox/internal/keyderiver"
	"github.com/certen/bsv-wallet-toolbox/internal/monitor"
	"github.com/certen/bsv-wallet-toolbox/internal/randutil"
	"github.com/certen/bsv-wallet-toolbox/internal/services"
	"github.com/certen/bsv-wallet-toolbox/internal/signer"
	"github.com/certen/bsv-wallet-toolbox/internal/wallet"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags)

	var (
		listenAddr = flag.String("listen-addr", "", "HTTP health/metrics listen address (overrides LISTEN_ADDR)")
		identityKey = flag.String("storage-identity-key", "", "hex-encoded 32-byte root private key (overrides STORAGE_IDENTITY_KEY)")
		showHelp   = flag.Bool("help", false, "show this help message")
	)
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *identityKey != "" {
		cfg.StorageIdentityKey = *identityKey
	}

	healthStatus := newHealthStatus()

	log.Println("[walletd] connecting to storage provider...")
	dbClient, err := database.NewClient(database.Config{
		DatabaseURL:         cfg.DatabaseURL,
		DatabaseMaxConns:    cfg.DatabaseMaxConns,
		DatabaseMinConns:    cfg.DatabaseMinConns,
		DatabaseMaxIdleTime: cfg.DatabaseMaxIdleTime,
		DatabaseMaxLifetime: cfg.DatabaseMaxLifetime,
	}, database.WithLogger(log.New(log.Writer(), "[Database] ", log.LstdFlags)))
	if err != nil {
		log.Fatalf("[walletd] storage provider connection failed: %v", err)
	}
	defer dbClient.Close()
	healthStatus.setDatabase("connected")

	if err := dbClient.MigrateUp(context.Background()); err != nil {
		log.Printf("[walletd] migration warning: %v", err)
	}
	repos := database.NewRepositories(dbClient)

	rootKey, err := hex.DecodeString(cfg.StorageIdentityKey)
	if err != nil || len(rootKey) != 32 {
		log.Fatalf("[walletd] STORAGE_IDENTITY_KEY must be a 32-byte hex string")
	}
	keys, err := keyderiver.New(rootKey)
	if err != nil {
		log.Fatalf("[walletd] key deriver: %v", err)
	}

	// No real WhatsOnChain/ARC/Bitails HTTP client ships (spec.md §1, §13
	// Non-goals): those transports are external collaborators, contract-only.
	chain := services.NewFake()
	rand := randutil.New()

	s := signer.New(signer.Config{
		Repos:  repos,
		Keys:   keys,
		Chain:  chain,
		Rand:   rand,
		Logger: log.New(log.Writer(), "[Signer] ", log.LstdFlags),
	})

	w := wallet.New(wallet.Config{
		Repos:      repos,
		Keys:       keys,
		Chain:      chain,
		Rand:       rand,
		Signer:     s,
		Network:    cfg.Network,
		Version:    cfg.Version,
		PendingTTL: cfg.PendingSignActionTTL,
		Logger:     log.New(log.Writer(), "[Wallet] ", log.LstdFlags),
	})
	_ = w // the façade is exercised by whatever embeds this process; walletd's job ends at wiring it up

	registry := prometheus.NewRegistry()
	mon := monitor.New(monitor.Config{
		Repos:         repos,
		CheckInterval: cfg.MonitorCheckInterval,
		Logger:        log.New(log.Writer(), "[Monitor] ", log.LstdFlags),
		Registerer:    registry,
	})
	registerDefaultTasks(mon, repos, s, chain, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	mon.Start(ctx)
	healthStatus.setMonitor("running")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		if healthStatus.overall() != "ok" {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}
		rw.Write(healthStatus.toJSON())
	})
	mux.HandleFunc("/health/detailed", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Write(healthStatus.toJSON())
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("[walletd] listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[walletd] http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[walletd] shutting down...")
	cancel()
	mon.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[walletd] http server shutdown error: %v", err)
	}
}

// registerDefaultTasks wires the Monitor's standard cooperative task set
// (spec.md §4.6), each on its own configured interval.
func registerDefaultTasks(mon *monitor.Monitor, repos *database.Repositories, s *signer.Signer, chain *services.Fake, cfg *config.Config) {
	mon.Register(monitor.NewClockTask())
	mon.Register(monitor.NewSendWaitingTask(repos, s))
	mon.Register(monitor.NewCheckForProofsTask(repos, chain, cfg.CheckForProofsInterval, monitor.DefaultCheckForProofsConfig()))
	mon.Register(monitor.NewCheckNoSendsTask(repos, cfg.CheckNoSendsInterval))
	mon.Register(monitor.NewFailAbandonedTask(repos, cfg.FailAbandonedInterval, cfg.FailAbandonedGrace))
	mon.Register(monitor.NewReviewStatusTask(repos, cfg.ReviewStatusInterval))
	mon.Register(monitor.NewUnFailTask(repos, cfg.UnFailInterval))
	mon.Register(monitor.NewSyncWhenIdleTask(repos, cfg.SyncWhenIdleInterval, cfg.SyncWhenIdleStaleAfter, cfg.StorageIdentityKey))
	mon.Register(monitor.NewReorgTask(repos, chain, cfg.ReorgCheckInterval))
	mon.Register(monitor.NewPurgeTask(repos, cfg.PurgeInterval, monitor.PurgeConfig{
		SpentOutputsAge:           cfg.PurgeSpentOutputsAge,
		CompletedTxAge:            cfg.PurgeCompletedTxAge,
		FailedTxAge:               cfg.PurgeFailedTxAge,
		MonitorEventsAgeDays:      cfg.PurgeMonitorEventsAgeDays,
	}))
}

func printHelp() {
	log.SetFlags(0)
	println("walletd - BRC-100 wallet toolbox daemon")
	println()
	println("Usage:")
	println("  walletd [OPTIONS]")
	println()
	println("Options:")
	println("  -listen-addr=ADDR            HTTP health/metrics listen address")
	println("  -storage-identity-key=HEX     32-byte hex root private key")
	println("  -help                         Show this help message")
}

// healthStatus is a minimal status rollup over the process's components,
// grounded on the teacher's HealthStatus (main.go) but reporting storage
// and the monitor loop instead of Ethereum/Accumulate/BLS.
type healthStatus struct {
	Database  string `json:"database"`
	Monitor   string `json:"monitor"`
	startTime time.Time
}

func newHealthStatus() *healthStatus {
	return &healthStatus{Database: "unknown", Monitor: "unknown", startTime: time.Now()}
}

func (h *healthStatus) setDatabase(v string) { h.Database = v }
func (h *healthStatus) setMonitor(v string)  { h.Monitor = v }

func (h *healthStatus) overall() string {
	if h.Database != "connected" || h.Monitor != "running" {
		return "degraded"
	}
	return "ok"
}

func (h *healthStatus) toJSON() []byte {
	data, _ := json.Marshal(struct {
		Status        string `json:"status"`
		Database      string `json:"database"`
		Monitor       string `json:"monitor"`
		UptimeSeconds int64  `json:"uptime_seconds"`
	}{
		Status:        h.overall(),
		Database:      h.Database,
		Monitor:       h.Monitor,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
	return data
}
