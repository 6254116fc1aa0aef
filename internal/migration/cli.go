package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI wraps a Migrator with formatted terminal output for the
// workflowd migrate subcommand.
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI creates a CLI writing to stdout.
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput redirects CLI output, mainly for tests.
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// run prints a banner, executes op, and reports the resulting schema
// version. Errors from op are wrapped with the failure verb.
func (c *CLI) run(ctx context.Context, banner, verb string, op func(context.Context) error) error {
	fmt.Fprintln(c.output, banner)
	if err := op(ctx); err != nil {
		return fmt.Errorf("%s failed: %w", verb, err)
	}
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Done. Current version: %d\n", info.CurrentVersion)
	return nil
}

// RunUp applies all pending migrations.
func (c *CLI) RunUp(ctx context.Context) error {
	return c.run(ctx, "Applying pending migrations...", "migration", c.migrator.Up)
}

// RunDown rolls back the last migration.
func (c *CLI) RunDown(ctx context.Context) error {
	return c.run(ctx, "Rolling back last migration...", "rollback", c.migrator.Down)
}

// RunDownAll rolls back every migration.
func (c *CLI) RunDownAll(ctx context.Context) error {
	return c.run(ctx, "Rolling back all migrations...", "rollback", c.migrator.DownAll)
}

// RunGoto migrates up or down to the given version.
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	return c.run(ctx, fmt.Sprintf("Migrating to version %d...", version), "migration",
		func(ctx context.Context) error { return c.migrator.Goto(ctx, version) })
}

// RunForce overwrites the recorded version without running migrations.
// It is the escape hatch for a dirty schema after a failed migration.
func (c *CLI) RunForce(ctx context.Context, version int) error {
	return c.run(ctx, fmt.Sprintf("Forcing version to %d...", version), "force",
		func(ctx context.Context) error { return c.migrator.Force(ctx, version) })
}

// RunVersion prints the current schema version.
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	switch {
	case version == 0:
		fmt.Fprintln(c.output, "No migrations applied yet.")
	case dirty:
		fmt.Fprintf(c.output, "Current version: %d (dirty)\n", version)
	default:
		fmt.Fprintf(c.output, "Current version: %d\n", version)
	}
	return nil
}

// RunStatus prints a per-migration table followed by the
// applied/pending totals.
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, statusLabel(s))
	}
	w.Flush()

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

func statusLabel(s MigrationStatus) string {
	switch {
	case s.Dirty:
		return "Dirty"
	case s.Applied:
		return "Applied"
	default:
		return "Pending"
	}
}
