// Package httpserver manages server creation and api routing.
package httpserver

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/accountrepo"
	"github.com/go-petr/pet-ledger/internal/ledgerdelivery"
	"github.com/go-petr/pet-ledger/internal/ledgerservice"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/internal/txhooks"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/go-petr/pet-ledger/pkg/txpkg"
)

// Server holds db connection, handlers router and configuration.
type Server struct {
	DB       *sql.DB
	Engine   *gin.Engine
	Config   configpkg.Config
	Ledger   *ledgerservice.Service
	Registry *prometheus.Registry
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// NewStore returns the account store selected by config.StoreKind.
// conn is only used by the postgres store.
func NewStore(conn *sql.DB, config configpkg.Config) (ledgerservice.Store, error) {
	switch config.StoreKind {
	case configpkg.StoreMemory:
		return accountrepo.NewMemStore(), nil
	case configpkg.StorePostgres:
		if conn == nil {
			return nil, errors.New("postgres store requires a db connection")
		}

		return accountrepo.NewRepoPGS(conn), nil
	}

	return nil, errors.New("unknown store kind " + config.StoreKind)
}

// NewExecutor returns the transaction executor configured from config, with
// logging, metrics and tracing hooks installed.
func NewExecutor(logger zerolog.Logger, config configpkg.Config, reg prometheus.Registerer) (*txpkg.Executor, error) {
	metrics, err := txhooks.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("cannot register transaction metrics: %w", err)
	}

	return txpkg.New(
		txpkg.WithPolicy(config.BackoffPolicy()),
		txpkg.WithMaxAttempts(config.TxMaxAttempts),
		txpkg.WithHook(txpkg.Hooks(txhooks.Log(logger), metrics.Hook(), txhooks.Trace())),
	), nil
}

// New creates Server type with instantiated domains and routes.
func New(conn *sql.DB, logger zerolog.Logger, config configpkg.Config) (*Server, error) {
	store, err := NewStore(conn, config)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exec, err := NewExecutor(logger, config, registry)
	if err != nil {
		return nil, err
	}

	ledgerService := ledgerservice.New(store, exec)
	ledgerHandler := ledgerdelivery.NewHandler(ledgerService)

	if err := ledgerdelivery.RegisterValidators(); err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(gin.Recovery())

	ledgerHandler.Register(engine)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	server := &Server{
		DB:       conn,
		Engine:   engine,
		Config:   config,
		Ledger:   ledgerService,
		Registry: registry,
	}

	return server, nil
}
