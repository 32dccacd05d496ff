package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/suyashwaghule/joitex-IVM/pkg/config"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
	"github.com/suyashwaghule/joitex-IVM/pkg/migrate"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: migrate [-timeout 5m] <up|down|status|redo|reset|version|up-to VERSION|down-to VERSION|to VERSION>\n")
	flag.PrintDefaults()
}

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "abort the migration after this long")
	flag.Usage = usage
	flag.Parse()

	command := "up"
	args := flag.Args()
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	cfg, err := config.LoadWithValidation("migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("migrate", cfg.Server.Environment)

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Info().Str("command", command).Strs("args", args).Msg("running migrations")
	if command == "to" {
		var version string
		if len(args) > 0 {
			version = args[0]
		}
		err = migrate.MigrateToVersion(ctx, db.DB.DB, version)
	} else {
		err = migrate.Run(ctx, db.DB.DB, command, args...)
	}
	if err != nil {
		log.Error().Err(err).Msg("migration failed")
		cancel()
		os.Exit(1)
	}
	log.Info().Str("command", command).Msg("migrations complete")
}
