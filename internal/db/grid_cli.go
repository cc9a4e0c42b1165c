package db

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
)

// RunGridCommand handles the 'grid' subcommand: listing, exporting,
// importing and pruning stored correction grids.
func RunGridCommand(ctx context.Context, args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintGridHelp(out)
		return fmt.Errorf("missing grid action")
	}

	database, err := NewDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "list":
		snaps, err := database.ListSnapshots(ctx, 0)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tSIZE\tLEARNED\tREASON")
		for _, s := range snaps {
			fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%d\t%s\n", s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"), s.Rows, s.Cols, s.Learned, s.Reason)
		}
		return tw.Flush()

	case "export":
		var snap *GridSnapshot
		if len(args) > 1 {
			snap, err = database.GetSnapshot(ctx, args[1])
		} else {
			snap, err = database.LatestSnapshot(ctx)
		}
		if err != nil {
			return err
		}
		_, err = out.Write(snap.Grid)
		return err

	case "import":
		if len(args) < 2 {
			return fmt.Errorf("usage: speedcurrent grid import <file.json>")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		snap, err := database.InsertSnapshot(ctx, data, ReasonManual)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %s (%dx%d, %d learned)\n", snap.ID, snap.Rows, snap.Cols, snap.Learned)
		return nil

	case "prune":
		keep := 10
		if len(args) > 1 {
			if keep, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("invalid keep count: %s", args[1])
			}
		}
		n, err := database.PruneSnapshots(ctx, keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %d snapshots\n", n)
		return nil

	default:
		PrintGridHelp(out)
		return fmt.Errorf("unknown grid action: %s", action)
	}
}

// PrintGridHelp prints usage for the grid subcommand.
func PrintGridHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: speedcurrent grid <action> [args]

Actions:
  list               List stored grid snapshots, newest first
  export [id]        Write a snapshot's grid JSON to stdout (default newest)
  import <file>      Store a grid JSON file as the newest snapshot
  prune [keep]       Delete all but the newest keep snapshots (default 10)
`)
}
