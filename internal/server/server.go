package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/internal/auth"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/internal/controlplane"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/internal/hub"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/internal/monitor"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/internal/router"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/internal/server/middleware"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/config"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/state"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/state/statemanager"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/transport"
)

// App wires the registries, the hub, the router, the heartbeat monitor and
// both HTTP listeners together. Its lifetime is owned by the process entry
// point; nothing here is a package-level singleton.
type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	hub          *hub.Hub
	eventRouter  *router.Router
	heartbeats   *monitor.Monitor
	facade       *controlplane.Facade
	wg           sync.WaitGroup
	ws           *http.Server
	controlPlane *http.Server
	config       *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) *App {
	stateManager := statemanager.NewInMemoryManager(logger)
	connectionHub := hub.New(logger, stateManager)
	eventRouter := router.New(logger, stateManager, connectionHub)
	heartbeats := monitor.New(logger, stateManager, connectionHub, cfg.Heartbeat)
	verifier := auth.NewVerifier(logger, cfg.Server.Auth.JWTSecret, cfg.Server.Auth.AllowAnonymous)

	facade := controlplane.NewFacade(logger)
	facade.Initialize(stateManager, connectionHub)

	app := &App{
		logger:       logger,
		stateManager: stateManager,
		hub:          connectionHub,
		eventRouter:  eventRouter,
		heartbeats:   heartbeats,
		facade:       facade,
		config:       cfg,
		ctx:          rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewAuthMiddleware(logger, verifier),
		),
	)

	baseCtx := func(l net.Listener) context.Context { return app.ctx }
	app.ws = &http.Server{Addr: cfg.Server.Address, Handler: mux, BaseContext: baseCtx}
	app.controlPlane = &http.Server{
		Addr:        cfg.ControlPlane.Address,
		Handler:     controlplane.NewHandler(logger, facade),
		BaseContext: baseCtx,
	}

	return app
}

// Facade exposes the control plane for embedding callers and tests.
func (a *App) Facade() *controlplane.Facade {
	return a.facade
}

func (a *App) Run() error {
	go func() {
		if err := a.heartbeats.Run(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("Heartbeat monitor stopped", slog.Any("error", err))
		}
	}()

	go func() {
		a.logger.Info("Socket server starting", slog.String("addr", a.ws.Addr))
		if err := a.ws.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("Socket server failed", slog.Any("error", err))
		}
	}()

	go func() {
		a.logger.Info("Control-plane server starting", slog.String("addr", a.controlPlane.Addr))
		if err := a.controlPlane.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("Control-plane server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.Identity.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	// Invalid credentials still get a socket, but only long enough to
	// receive the policy-violation close frame. No registration happens.
	if reqMeta.AuthErr != nil {
		connLogger.Warn("Closing unauthenticated connection", slog.Any("error", reqMeta.AuthErr))
		wsConn.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}

	identity := reqMeta.Identity
	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		nil,
		nil,
		a.logger,
	)
	conn.SetOnMessageHandler(func(ctx context.Context, msg []byte) {
		a.eventRouter.HandleFrame(ctx, identity.UserID, msg)
	})
	conn.SetOnCloseHandler(func(err error) {
		connLogger.Info("Detaching connection due to closure", slog.Any("reason", err))
		a.hub.Detach(identity.UserID, conn)
	})

	// The hub closes any replaced transport for the same user.
	a.hub.Register(identity, conn)

	connLogger.Info("User connection fully established", slog.String("role", identity.Role))
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.ws.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.controlPlane.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, entry := range a.stateManager.All() {
		entry.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
