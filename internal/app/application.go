package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"slidecast/internal/api"
	"slidecast/internal/broadcast"
	"slidecast/internal/config"
	"slidecast/internal/database"
	"slidecast/internal/registry"
	"slidecast/internal/router"
	"slidecast/internal/session"
	"slidecast/internal/websocket"
	dbconfig "slidecast/pkg/database"
)

// Application owns component construction and lifecycle. Initialization order
// follows the dependency chain: database, session store, registry,
// broadcaster, router, transport, HTTP.
type Application struct {
	cfg        *config.Config
	log        *zap.Logger
	db         *database.Manager
	store      *session.Store
	registry   *registry.Registry
	router     *router.Router
	httpServer *http.Server
}

// NewApplication wires every component.
func NewApplication(cfg *config.Config, log *zap.Logger) (*Application, error) {
	dbCfg := dbconfig.DefaultConfig()
	dbCfg.Path = cfg.Database.Path

	db, err := database.NewManager(dbCfg, log.Named("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	store := session.NewStore(db, log.Named("session"))
	reg := registry.NewRegistry()
	bc := broadcast.NewBroadcaster(reg, log.Named("broadcast"))
	rt := router.NewRouter(store, reg, bc, db, log.Named("router"))

	wsHandler := websocket.NewHandler(rt, websocket.Options{
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		PingInterval: cfg.WebSocket.PingInterval,
		SendBuffer:   cfg.WebSocket.SendBuffer,
		MaxFrameSize: cfg.WebSocket.MaxFrameSize,
	}, log.Named("websocket"))

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	apiServer := api.NewServer(store, reg, db, log.Named("api"))
	apiServer.Register(engine)
	engine.GET("/ws", func(c *gin.Context) {
		wsHandler.Serve(c.Writer, c.Request)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		db:         db,
		store:      store,
		registry:   reg,
		router:     rt,
		httpServer: httpServer,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server listening", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		_ = a.db.Close()
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.WriteTimeout)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown incomplete", zap.Error(err))
	}

	// Closing the database last drains the write-behind queue, so mode changes
	// accepted before shutdown still land.
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("database close failed: %w", err)
	}
	return nil
}
