package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand runs a migrate subcommand (up, down, status, to,
// force) against the database at dbPath and prints the outcome to w.
func RunMigrateCommand(w io.Writer, args []string, dbPath string) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("missing migrate action")
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(w)
		return nil
	}

	// Open without migrating; the command manages the schema itself.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		fmt.Fprintln(w, "All migrations applied")
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		fmt.Fprintln(w, "Rolled back one migration")
	case "status":
	case "to", "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: migrate %s <version>", action)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if action == "to" {
			err = database.MigrateTo(uint(v))
		} else {
			err = database.MigrateForce(v)
		}
		if err != nil {
			return err
		}
	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
	return printMigrateStatus(w, database)
}

func printMigrateStatus(w io.Writer, database *DB) error {
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Current version: %d\n", version)
	fmt.Fprintf(w, "Latest version: %d\n", latest)
	fmt.Fprintf(w, "Dirty: %v\n", dirty)
	if dirty {
		fmt.Fprintln(w, "WARNING: a migration failed mid-execution; inspect the database and run: heartbeat migrate force <version>")
	}
	return nil
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: heartbeat migrate <action> [args]

Actions:
  up              Apply all pending migrations
  down            Roll back the most recent migration
  status          Show the current and latest schema version
  to <version>    Migrate up or down to a specific version
  force <version> Set the recorded version without migrating (recovery only)
  help            Show this help
`)
}
