// Package main is the entry point for the Gateway.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chainkvm/teleop/gateway/config"
	"github.com/chainkvm/teleop/internal/gateway/api"
	"github.com/chainkvm/teleop/internal/gateway/audit"
	"github.com/chainkvm/teleop/internal/gateway/policy"
	"github.com/chainkvm/teleop/internal/gateway/revocation"
	"github.com/chainkvm/teleop/internal/gateway/session"
	"github.com/chainkvm/teleop/internal/gateway/signaling"
	"github.com/chainkvm/teleop/internal/gateway/token"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	g, err := newGateway(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize gateway", zap.Error(err))
	}

	if err := g.run(ctx); err != nil {
		logger.Fatal("gateway failed", zap.Error(err))
	}
}

// gateway coordinates all Gateway components.
type gateway struct {
	cfg    *config.Config
	logger *zap.Logger

	keys        *token.KeySet
	registry    *token.Registry
	sessions    *session.Manager
	hub         *signaling.Hub
	coordinator *revocation.Coordinator
	auditQueue  *audit.Queue
	auditDrain  *audit.Drainer

	httpServer *http.Server
}

func newGateway(cfg *config.Config, logger *zap.Logger) (*gateway, error) {
	snapshot, err := policy.Load(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}

	keys, err := token.NewKeySet(cfg.SigningKeyID, cfg.SigningSeedHex, cfg.PrevSigningKeyID, cfg.PrevSigningSeed)
	if err != nil {
		return nil, err
	}

	issuer := token.NewIssuer(keys, cfg.Issuer, time.Duration(cfg.MaxTTLSeconds)*time.Second)

	g := &gateway{cfg: cfg, logger: logger, keys: keys}

	g.registry = token.NewRegistry(time.Duration(cfg.TokenGraceSec)*time.Second, nil)

	g.auditQueue = audit.NewQueue(cfg.AuditQueueSize, time.Duration(cfg.AuditCriticalWait)*time.Millisecond, logger)
	g.auditDrain = audit.NewDrainer(g.auditQueue, noopLedger{}, logger, 5)

	iceServers := buildICEServers(cfg)

	g.sessions = session.NewManager(snapshot, issuer, g.registry, g.auditQueue, cfg.SignalingURL, iceServers, logger)
	g.registry.SetSessionOpenFunc(g.sessions.IsOpen)

	verifier := token.NewVerifier(keys)
	checker := token.NewSessionChecker(verifier, g.registry)
	g.hub = signaling.NewHub(checker, g.sessions, logger)

	g.coordinator = revocation.NewCoordinator(g.sessions, g.registry, g.hub, g.auditQueue, func(ts revocation.Timestamps) {
		logger.Info("revocation completed",
			zap.String("session_id", ts.SessionID),
			zap.Duration("total", ts.Audited.Sub(ts.Start)))
	})

	apiHandler := api.NewHandler(g.sessions, g.coordinator, keys, cfg.AdminAPIKey, logger)
	mux := http.NewServeMux()
	mux.Handle("/", apiHandler.Router())
	mux.HandleFunc("/v1/signal", g.hub.ServeHTTP)

	g.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return g, nil
}

func buildICEServers(cfg *config.Config) []session.ICEServer {
	var servers []session.ICEServer
	if len(cfg.STUNServers) > 0 {
		servers = append(servers, session.ICEServer{URLs: cfg.STUNServers})
	}
	if len(cfg.TURNServers) > 0 {
		servers = append(servers, session.ICEServer{URLs: cfg.TURNServers})
	}
	return servers
}

func (g *gateway) run(ctx context.Context) error {
	stop := make(chan struct{})

	go g.registry.RunSweeper(stop, time.Duration(g.cfg.TokenGraceSec)*time.Second)
	go g.auditDrain.Run(stop)

	serveErr := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", zap.String("addr", g.cfg.HTTPAddr))
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		g.logger.Info("shutdown signal received")
	case err := <-serveErr:
		g.logger.Error("http server failed", zap.Error(err))
	}

	close(stop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.httpServer.Shutdown(shutdownCtx)
}

// noopLedger is the out-of-scope ledger engine's stand-in: the audit
// drainer needs a LedgerAdapter to exercise its retry/breaker path,
// but durable storage is explicitly out of scope for the core.
type noopLedger struct{}

func (noopLedger) Write(ctx context.Context, e audit.Event) error { return nil }
