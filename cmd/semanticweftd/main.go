// Command semanticweftd runs a SemanticWeft federation node: it serves the
// HTTP API, pulls from configured peers on a schedule, and dispatches
// locally-submitted units to the network. Startup, signal handling, and
// graceful shutdown follow the teacher's cmd/hermes-indexer/main.go shape —
// flag-selected config path, hclog logger, context cancelled from a signal
// goroutine.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/JDRay42/semanticweft/internal/api"
	"github.com/JDRay42/semanticweft/internal/config"
	"github.com/JDRay42/semanticweft/internal/server"
	"github.com/JDRay42/semanticweft/pkg/federation"
	"github.com/JDRay42/semanticweft/pkg/identity"
	"github.com/JDRay42/semanticweft/pkg/ratelimit"
	"github.com/JDRay42/semanticweft/pkg/storage"
)

// nodeIdentitySeedKey is the settings row holding the node's persisted
// Ed25519 seed, so restarts keep the same DID rather than minting a new one.
const nodeIdentitySeedKey = "node.identity.seed"

func main() {
	configPath := flag.String("config", "semanticweft.hcl", "Path to configuration file")
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "semanticweftd",
		Level: hclog.Info,
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	logger.Info("starting semanticweftd", "config", *configPath, "bind", cfg.Bind)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("semanticweftd failed", "error", err)
		cancel()
		os.Exit(1)
	}
	logger.Info("semanticweftd stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger hclog.Logger) error {
	store, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	kp, err := loadOrCreateIdentity(ctx, store)
	if err != nil {
		return fmt.Errorf("load node identity: %w", err)
	}
	logger.Info("node identity ready", "did", kp.DID)

	httpClient := &http.Client{Timeout: 20 * time.Second}
	resolver := federation.NewResolver(httpClient, 15*time.Minute)

	srv := &server.Server{
		Config:      cfg,
		Store:       store,
		Logger:      logger,
		Identity:    kp,
		RateLimiter: ratelimit.NewIPLimiter(cfg.RateLimit),
		Resolver:    resolver,
		HTTPClient:  httpClient,
		StartedAt:   time.Now(),
	}
	selfHost := cfg.APIBase
	if u, err := url.Parse(cfg.APIBase); err == nil && u.Host != "" {
		selfHost = u.Host
	}
	srv.Dispatcher = federation.NewDispatcher(store, kp, httpClient, resolver, logger, selfHost, followerInboxLookup(srv))

	if err := registerBootstrapPeers(ctx, store, cfg, logger); err != nil {
		logger.Warn("bootstrap peer registration incomplete", "error", err)
	}

	var wg sync.WaitGroup
	startSyncLoops(ctx, &wg, store, httpClient, logger, cfg, kp.DID)

	httpServer := &http.Server{
		Addr:    cfg.Bind,
		Handler: api.NewRouter(srv),
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "bind", cfg.Bind)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
		}
	}()

	select {
	case err := <-serveErrCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown did not complete cleanly", "error", err)
	}
	wg.Wait()
	return nil
}

// openStore dispatches cfg.DB on its dialect prefix: "sqlite:<path>" or
// "postgres:<dsn>", matching the self-service config.Defaults() value of
// "sqlite::memory:".
func openStore(cfg *config.Config, logger hclog.Logger) (storage.Store, error) {
	dialect, rest, ok := strings.Cut(cfg.DB, ":")
	if !ok {
		return nil, fmt.Errorf("malformed db dsn %q, expected dialect:rest", cfg.DB)
	}
	switch dialect {
	case "sqlite":
		return storage.OpenSQLite(rest, logger)
	case "postgres":
		return storage.OpenPostgres(rest, logger)
	default:
		return nil, fmt.Errorf("unsupported db dialect %q", dialect)
	}
}

// loadOrCreateIdentity restores the node's Ed25519 seed from settings, or
// generates and persists a fresh one on first boot.
func loadOrCreateIdentity(ctx context.Context, store storage.Store) (*identity.KeyPair, error) {
	seedHex, found, err := store.GetSetting(ctx, nodeIdentitySeedKey)
	if err != nil {
		return nil, err
	}
	if found {
		seed, err := decodeHexSeed(seedHex)
		if err != nil {
			return nil, err
		}
		return identity.KeyPairFromSeed(seed)
	}

	kp, err := identity.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := store.SetSetting(ctx, nodeIdentitySeedKey, encodeHexSeed(kp.Seed())); err != nil {
		return nil, err
	}
	return kp, nil
}

func encodeHexSeed(seed []byte) string {
	return hex.EncodeToString(seed)
}

func decodeHexSeed(s string) ([]byte, error) {
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed persisted identity seed: %w", err)
	}
	return seed, nil
}

// registerBootstrapPeers admits every configured bootstrap peer at the
// default reputation, deduplicated by node_id via UpsertPeer's own
// update-if-exists semantics.
func registerBootstrapPeers(ctx context.Context, store storage.Store, cfg *config.Config, logger hclog.Logger) error {
	for _, apiBase := range cfg.BootstrapPeers {
		apiBase = strings.TrimSpace(apiBase)
		if apiBase == "" {
			continue
		}
		doc, err := fetchDiscoveryDocument(ctx, apiBase)
		if err != nil {
			logger.Warn("bootstrap peer discovery failed", "peer", apiBase, "error", err)
			continue
		}
		if _, err := store.UpsertPeer(ctx, &storage.PeerInfo{NodeID: doc.NodeID, APIBase: apiBase, Reputation: 0.5}, cfg.MaxPeers); err != nil {
			logger.Warn("bootstrap peer admission failed", "peer", apiBase, "error", err)
		}
	}
	return nil
}

type discoveryDoc struct {
	NodeID string `json:"node_id"`
}

func fetchDiscoveryDocument(ctx context.Context, apiBase string) (*discoveryDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/.well-known/semanticweft", nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery status %d", resp.StatusCode)
	}
	var doc discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// startSyncLoops launches one federation.Puller.RunForever goroutine per
// currently-known peer; wg lets shutdown wait for the in-flight page to
// finish rather than cutting it off mid-sync.
func startSyncLoops(ctx context.Context, wg *sync.WaitGroup, store storage.Store, client *http.Client, logger hclog.Logger, cfg *config.Config, selfNodeID string) {
	peers, err := store.ListPeers(ctx)
	if err != nil {
		logger.Warn("failed to list peers for sync loop startup", "error", err)
		return
	}
	puller := federation.NewPuller(client, store, logger)
	interval := time.Duration(cfg.SyncIntervalSecs) * time.Second
	for _, p := range peers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			puller.RunForever(ctx, p.NodeID, p.APIBase, selfNodeID, interval)
		}()
	}
}

// followerInboxLookup consults the locally-registered agent profile for a
// follower's inbox URL; the Dispatcher itself falls back to WebFinger
// resolution when this returns an error, so remote followers need no
// special casing here.
func followerInboxLookup(srv *server.Server) federation.FollowerLookup {
	return func(ctx context.Context, followerDID string) (string, error) {
		agent, err := srv.Store.GetAgent(ctx, followerDID)
		if err != nil || agent.InboxURL == "" {
			return "", fmt.Errorf("no registered inbox for %s", followerDID)
		}
		return agent.InboxURL, nil
	}
}
