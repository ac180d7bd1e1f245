// Package main runs the ledger application flow once and reports each step.
//
// The store is selected by STORE_KIND; --store overrides it. Run with
// --store=memory to try the flow without a database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	flag "github.com/spf13/pflag"

	"github.com/go-petr/pet-ledger/cmd/httpserver"
	"github.com/go-petr/pet-ledger/internal/accountrepo"
	"github.com/go-petr/pet-ledger/internal/ledgerapp"
	"github.com/go-petr/pet-ledger/internal/ledgerservice"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"

	_ "github.com/lib/pq"
)

func main() {
	var (
		configPath = flag.String("config", "./configs", "directory holding app.env")
		storeKind  = flag.String("store", "", "store kind: postgres or memory (overrides STORE_KIND)")
		amount     = flag.String("amount", "100.00", "amount moved from account 1 to account 2")
		overdraft  = flag.String("overdraft", "100000.00", "amount moved back, expected to be declined")
	)

	flag.Parse()

	if *storeKind != "" {
		if err := os.Setenv("STORE_KIND", *storeKind); err != nil {
			log.Fatal().Err(err).Msg("cannot set STORE_KIND")
		}
	}

	config, err := configpkg.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.GetLogger(config).With().Str("app", "ledger").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithContext(ctx)

	params := ledgerapp.DefaultParams()

	if params.Amount, err = decimal.NewFromString(*amount); err != nil {
		logger.Fatal().Err(err).Msg("invalid --amount")
	}

	if params.Overdraft, err = decimal.NewFromString(*overdraft); err != nil {
		logger.Fatal().Err(err).Msg("invalid --overdraft")
	}

	exec, err := httpserver.NewExecutor(logger, config, prometheus.NewRegistry())
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create executor")
	}

	var store ledgerservice.Store = accountrepo.NewMemStore()

	if config.StoreKind == configpkg.StorePostgres {
		db, err := dbpkg.Setup(ctx, config.DBDriver, config.DBSource)
		if err != nil {
			logger.Fatal().Err(err).Msg("cannot connect to database")
		}
		defer db.Close()

		if err := dbpkg.Migrate(config.MigrationURL, config.DBSource); err != nil {
			logger.Fatal().Err(err).Msg("cannot migrate database")
		}

		store = accountrepo.NewRepoPGS(db)
	}

	report, err := ledgerapp.Run(ctx, ledgerservice.New(store, exec), params)
	if err != nil {
		logger.Error().Err(err).Msg("ledger flow failed")
		os.Exit(1)
	}

	logger.Info().
		Int("seeded", report.Seeded).
		Str("transfer", report.Transfer.Status.String()).
		Str("overdraft", report.Overdraft.Status.String()).
		Msg("ledger flow finished")
}
