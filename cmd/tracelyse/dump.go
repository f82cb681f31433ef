package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"tracelyse/internal/source"
	"tracelyse/internal/trace"
)

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [flags] TRACE...",
		Short: "Print or convert decoded trace records",
		Long: "Print decoded trace records, one per line, or write them to another trace file.\n" +
			"The output format and compression follow the --write file extension.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			apid, _ := cmd.Flags().GetString("apid")
			ctid, _ := cmd.Flags().GetString("ctid")
			sorted, _ := cmd.Flags().GetBool("sort")
			recursive, _ := cmd.Flags().GetBool("recursive")
			limit, _ := cmd.Flags().GetInt("limit")
			out, _ := cmd.Flags().GetString("write")

			paths, err := source.Discover(args, recursive)
			if err != nil {
				return err
			}

			var filters []trace.Pair
			if apid != "" || ctid != "" {
				filters = []trace.Pair{{APID: apid, CTID: ctid}}
			}
			opts := trace.ReadOptions{Filters: filters, Sort: sorted}

			fsys := afero.NewOsFs()
			emit := func(rec *trace.Record) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), rec)
				return err
			}
			var w *source.Writer
			if out != "" {
				w, err = source.Create(fsys, out)
				if err != nil {
					return err
				}
				emit = w.Write
			}

			err = dump(ctx, source.New(source.Config{FS: fsys}), paths, opts, limit, emit)
			if w != nil {
				err = errors.Join(err, w.Close())
			}
			return err
		},
	}
	f := cmd.Flags()
	f.String("apid", "", "only records with this APID")
	f.String("ctid", "", "only records with this CTID")
	f.Bool("sort", false, "sort each trace by storage timestamp")
	f.BoolP("recursive", "r", false, "search directories recursively for traces")
	f.Int("limit", 0, "stop after this many records (0 means no limit)")
	f.StringP("write", "w", "", "write records to this trace file instead of printing them")
	return cmd
}

// dump streams the records of every path to emit. The first source error
// stops the dump.
func dump(ctx context.Context, src trace.Source, paths []string, opts trace.ReadOptions, limit int, emit func(*trace.Record) error) error {
	n := 0
	for _, path := range paths {
		for rec, err := range src.Records(ctx, path, opts) {
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := emit(rec); err != nil {
				return err
			}
			n++
			if limit > 0 && n >= limit {
				return nil
			}
		}
	}
	return nil
}
