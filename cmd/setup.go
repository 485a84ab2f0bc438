package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/harmonymaker/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase opens the configured database and runs pending migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "driver", r.config.Database.Driver)

	db, err := r.openDB(r.config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	r.logger.Info("running database migrations")
	applied, err := shared.RunMigrations(db)
	if err != nil {
		r.writePlain("%s\n", r.palette.Status("migrations", err))
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := shared.CurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if len(applied) == 0 {
		r.writePlain("%s\n", r.palette.Status(fmt.Sprintf("database up to date (version %d)", version), nil))
		return nil
	}
	r.writePlain("%s\n", r.palette.Status(fmt.Sprintf("applied %d migration(s), now at version %d", len(applied), version), nil))
	return nil
}

// SetupStorage creates the original and transformed buckets when missing.
func (r *Runner) SetupStorage(ctx context.Context, cmd *cli.Command) error {
	store, err := r.newStorage(r.config.Storage, r.logger)
	if err != nil {
		return fmt.Errorf("failed to configure storage: %w", err)
	}

	created, err := store.Setup(ctx)
	if err != nil {
		r.writePlain("%s\n", r.palette.Status("storage setup", err))
		return err
	}

	if len(created) == 0 {
		r.writePlain("%s\n", r.palette.Status("buckets already exist", nil))
		return nil
	}
	for _, bucket := range created {
		r.writePlain("%s\n", r.palette.Status("created bucket "+bucket, nil))
	}
	return nil
}

// SetupConfig writes the config template to --output.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.writePlain("%s\n", r.palette.Status("config written to "+path, nil))
	r.writePlainln("Next steps:")
	r.writePlain("1. Fill in the storage, auth and google sections (or set them in .env)\n")
	r.writePlain("2. Run 'harmony setup database' and 'harmony setup storage'\n")
	r.writePlain("3. Run 'harmony serve'\n")
	return nil
}

// MigrateRollback rolls back the latest applied migration.
func (r *Runner) MigrateRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDB(r.config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := shared.RollbackMigration(db)
	if err != nil {
		return err
	}

	r.writePlain("%s\n", r.palette.Status(fmt.Sprintf("rolled back migration %d", version), nil))
	return nil
}

// MigrateStatus prints the current schema version.
func (r *Runner) MigrateStatus(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDB(r.config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := shared.CurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version (run 'harmony setup database' first): %w", err)
	}

	r.writePlain("schema version: %d\n", version)
	return nil
}
