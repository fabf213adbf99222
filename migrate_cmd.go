package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yes1688/arkprobe/internal/arkapi"
	"github.com/yes1688/arkprobe/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate <dir>",
		Short: "Mirror a local folder tree into the target as folders",
		Long: `Create one remote folder per local directory below <dir>, reusing folders
that already exist. Hidden directories and names ending in one of
migrate.skip_suffixes are left out. Only folders are created; file
contents are not uploaded.`,
		Args: cobra.ExactArgs(1),
		RunE: runMigrate,
	}

	cmd.Flags().Bool("dry-run", false, "report what would be created without calling the API")

	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg

	dryRun, _ := cmd.Flags().GetBool("dry-run")

	client := arkapi.NewClient(cfg.BaseURL, defaultHTTPClient(), arkapi.Identity{
		Header: cfg.IdentityHeader,
		Email:  cfg.AdminEmail,
	}, cc.Logger)

	m := migrate.New(client, migrate.Options{
		SkipSuffixes: cfg.Migrate.SkipSuffixes,
		SkipHidden:   cfg.Migrate.SkipHidden,
		DryRun:       dryRun,
	}, cc.Logger)

	res, err := m.Run(shutdownContext(cmd.Context(), cc.Logger), args[0])
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		if err := encodeJSON(os.Stdout, res.Entries); err != nil {
			return err
		}
	} else {
		printMigration(os.Stdout, res)
	}

	if n := res.Count(migrate.ActionFailed); n > 0 {
		return fmt.Errorf("%d folders could not be created", n)
	}

	return nil
}

func printMigration(w io.Writer, res *migrate.Result) {
	if len(res.Entries) == 0 {
		fmt.Fprintln(w, "No directories to migrate.")
		return
	}

	rows := make([][]string, 0, len(res.Entries))

	for _, e := range res.Entries {
		id := "-"
		if e.ID != 0 {
			id = strconv.FormatInt(e.ID, 10)
		}

		rows = append(rows, []string{string(e.Action), id, e.Path, orDash(e.Error)})
	}

	printTable(w, []string{"ACTION", "ID", "PATH", "ERROR"}, rows)

	fmt.Fprintf(w, "\n%d created, %d existing, %d planned, %d skipped, %d failed\n",
		res.Count(migrate.ActionCreated),
		res.Count(migrate.ActionExisting),
		res.Count(migrate.ActionPlanned),
		res.Count(migrate.ActionSkipped),
		res.Count(migrate.ActionFailed),
	)
}
