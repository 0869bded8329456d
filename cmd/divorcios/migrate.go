package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/config"
	"github.com/defensoria-civil/divorcios/internal/database"
	"github.com/defensoria-civil/divorcios/internal/migration"
	"github.com/defensoria-civil/divorcios/storage"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	action := args[0]
	rest := args[1:]
	if action == "help" || action == "-h" || action == "--help" {
		printMigrateUsage()
		return
	}

	// force / steps 需要数字参数
	n := 0
	if action == "force" || action == "steps" {
		if len(rest) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: divorcios migrate %s <n>\n", action)
			os.Exit(1)
		}
		v, err := strconv.Atoi(rest[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid number: %s\n", rest[0])
			os.Exit(1)
		}
		n = v
		rest = rest[1:]
	}

	fs := flag.NewFlagSet("migrate "+action, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(rest)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	migrator, err := migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
	if errors.Is(err, migration.ErrSQLiteUsesAutoMigrate) {
		if err := autoMigrateSQLite(action, cfg.Database, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	if err := migration.NewCLI(migrator).Run(ctx, action, n); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

// autoMigrateSQLite sqlite 只支持 up（AutoMigrate）
func autoMigrateSQLite(action string, dbCfg config.DatabaseConfig, logger *zap.Logger) error {
	if action != "up" {
		return fmt.Errorf("sqlite supports only 'migrate up': %w", migration.ErrSQLiteUsesAutoMigrate)
	}
	db, err := database.Open(dbCfg, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := storage.AutoMigrate(db); err != nil {
		return err
	}
	fmt.Println("SQLite schema is up to date")
	return nil
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  divorcios migrate <subcommand> [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  status      Show migration status
  version     Show current migration version
  steps <n>   Apply (n>0) or rollback (n<0) n migrations
  force <v>   Force set migration version (use with caution)
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)

Examples:
  divorcios migrate up
  divorcios migrate up --config /etc/divorcios/config.yaml
  divorcios migrate status
  divorcios migrate steps -1
  divorcios migrate force 1`)
}
