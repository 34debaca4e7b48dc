// Command migrate manages the ThreatTrace database schema. It reads the same
// THREATTRACE_* environment as the server, so it can run from the same
// deployment unit without extra configuration.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/threattrace/threattrace/internal/config"
	"github.com/threattrace/threattrace/internal/database"
	"github.com/threattrace/threattrace/internal/logger"
)

var (
	migrationsDir string
	rollbackSteps int
)

func main() {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the ThreatTrace database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&migrationsDir, "dir", "migrations", "directory containing migration files")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE:  runDown,
	}
	down.Flags().IntVar(&rollbackSteps, "steps", 1, "number of migrations to roll back")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE:  runUp,
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			RunE:  runStatus,
		},
		&cobra.Command{
			Use:   "create [name]",
			Short: "Generate an empty up/down migration pair",
			Args:  cobra.ExactArgs(1),
			RunE:  runCreate,
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func newMigrator() (*migrate.Migrate, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to init migration driver: %w", err)
	}

	return migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
}

func runUp(cmd *cobra.Command, args []string) error {
	log := logger.New("info", "text")

	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("schema already up to date")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	version, _, _ := m.Version()
	log.Info().Uint("version", version).Msg("schema migrated")
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	if rollbackSteps < 1 {
		return fmt.Errorf("steps must be at least 1, got %d", rollbackSteps)
	}

	log := logger.New("info", "text")

	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-rollbackSteps); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	log.Info().Int("steps", rollbackSteps).Msg("schema rolled back")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		fmt.Println("schema version: none applied")
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	case dirty:
		fmt.Printf("schema version: %d (dirty, needs manual repair)\n", version)
	default:
		fmt.Printf("schema version: %d\n", version)
	}
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}

	version, err := nextVersion(migrationsDir)
	if err != nil {
		return err
	}

	name := strings.ReplaceAll(strings.ToLower(args[0]), " ", "_")
	for _, direction := range []string{"up", "down"} {
		path := filepath.Join(migrationsDir, fmt.Sprintf("%06d_%s.%s.sql", version, name, direction))
		stub := fmt.Sprintf("-- %s: %s\n", name, direction)
		if err := os.WriteFile(path, []byte(stub), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Println("created", path)
	}
	return nil
}

// nextVersion scans existing migration files and returns the highest numeric
// prefix plus one, so a deleted migration never gets its version reused.
func nextVersion(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	highest := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		prefix, _, found := strings.Cut(entry.Name(), "_")
		if !found {
			continue
		}
		n, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}
