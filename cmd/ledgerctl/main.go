package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"posledger/backend/internal/bootstrap"
	"posledger/backend/internal/config"
	"posledger/backend/internal/logger"
	"posledger/backend/internal/service"
)

func main() {
	_ = godotenv.Load()

	log := logger.New(logger.Options{
		ServiceName: "ledgerctl",
		Level:       logger.ParseLevel(os.Getenv("LOG_LEVEL")),
		Format:      "console",
		Output:      os.Stderr,
	})

	root := newRootCmd(openLedger(log), os.Stdout)
	if err := root.Execute(); err != nil {
		log.Event(context.Background(), zerolog.ErrorLevel).Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// openLedger connects to the shared Postgres ledger; tools never run against
// a private in-memory store.
func openLedger(log *logger.Logger) ledgerOpener {
	return func(ctx context.Context) (*service.Service, func() error, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		rt, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{})
		if err != nil {
			return nil, nil, err
		}
		return rt.Service, rt.Close, nil
	}
}
