package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/alecthomas/kong"

	"github.com/elee1766/servoskull/src/storage"
)

// MigrateCmd manages database migrations
type MigrateCmd struct {
	Up     MigrateUpCmd     `cmd:"" help:"Run pending migrations"`
	Status MigrateStatusCmd `cmd:"" help:"Show migration status"`
}

// MigrateUpCmd runs pending migrations
type MigrateUpCmd struct {
	DBPath string `help:"Database path (defaults to config)"`
}

// Run executes the migrate up command
func (c *MigrateUpCmd) Run(kctx *kong.Context, cli *CLI) error {
	db, err := openArchive(context.Background(), cli, c.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Printf("Database migrated: %s\n", db.Path())
	return nil
}

// MigrateStatusCmd shows migration status
type MigrateStatusCmd struct {
	DBPath string `help:"Database path (defaults to config)"`
}

// Run executes the migrate status command
func (c *MigrateStatusCmd) Run(kctx *kong.Context, cli *CLI) error {
	ctx := context.Background()
	db, err := openArchive(ctx, cli, c.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Database: %s\n", db.Path())
	for _, v := range storage.KnownVersions() {
		state := "pending"
		if slices.Contains(applied, v) {
			state = "applied"
		}
		fmt.Printf("  %03d  %s\n", v, state)
	}
	return nil
}
