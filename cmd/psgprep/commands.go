package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Noofbiz/sleepEvents/anchors"
	"github.com/Noofbiz/sleepEvents/datamodule"
	"github.com/Noofbiz/sleepEvents/manifest"
	"github.com/Noofbiz/sleepEvents/windows"
)

func newSplitCmd(opts *rootOptions) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Show the train/eval/test partition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dm, err := datamodule.New(opts.cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			p := dm.Partition()
			for _, subset := range []string{"train", "eval", "test"} {
				ids, _ := p.Get(subset)
				fmt.Fprintf(out, "%-5s %s records\n", subset, humanize.Comma(int64(len(ids))))
				if list {
					for _, id := range ids {
						fmt.Fprintf(out, "  %s\n", id)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list the record ids of each partition")
	return cmd
}

func newAnchorsCmd(opts *rootOptions) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "anchors",
		Short: "Show the anchor set of the configured window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if err := cfg.Validate(); err != nil {
				return err
			}
			loader, err := windows.NewLoader(datamodule.LoaderOptions(cfg))
			if err != nil {
				return err
			}
			windowSize := loader.WindowSize()
			durations := anchors.Seconds(cfg.DefaultEventDurations, cfg.Fs)
			set, err := anchors.Generate(windowSize, durations, cfg.FactorOverlap)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "window: %d samples (%gs at %g Hz), overlap factor %d\n",
				windowSize, cfg.WindowDuration, cfg.Fs, cfg.FactorOverlap)
			for i, d := range durations {
				fmt.Fprintf(out, "  %gs (%d samples): %d anchors\n",
					cfg.DefaultEventDurations[i], d, anchors.Count(windowSize, d, cfg.FactorOverlap))
			}
			fmt.Fprintf(out, "total: %d anchors\n", len(set))
			if list {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "#\tstart\tend\tcenter\tduration")
				for i, a := range set {
					fmt.Fprintf(tw, "%d\t%g\t%g\t%g\t%g\n", i, a.Start(), a.End(), a.Center, a.Duration)
				}
				return tw.Flush()
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list every anchor")
	return cmd
}

func newPrecomputeCmd(opts *rootOptions) *cobra.Command {
	var subsets []string
	cmd := &cobra.Command{
		Use:   "precompute",
		Short: "Build the dataset caches of the given partitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			cfg.CacheData = true
			if cfg.CacheDir == "" {
				return errors.New("precompute needs cache_dir or --cache-dir")
			}
			dm, err := datamodule.New(cfg)
			if err != nil {
				return err
			}
			defer dm.Close()

			out := cmd.OutOrStdout()
			for _, subset := range subsets {
				ds, err := dm.Dataset(cmd.Context(), subset)
				if err != nil {
					return errors.Wrapf(err, "precompute %s", subset)
				}
				sum, err := ds.Summary()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-5s %s windows from %s records, %s positive anchors, %s ignored (key %s)\n",
					subset, humanize.Comma(int64(ds.Len())), humanize.Comma(int64(len(ds.IDs()))),
					humanize.Comma(int64(sum.Positive)), humanize.Comma(int64(sum.Ignored)), ds.Key()[:16])
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&subsets, "subsets", []string{"train", "eval", "test"}, "partitions to precompute")
	return cmd
}

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List the cache entries recorded in the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.cfg.Manifest
			if path == "" {
				if opts.cfg.CacheDir == "" {
					return errors.New("inspect needs manifest, cache_dir or --cache-dir")
				}
				path = filepath.Join(opts.cfg.CacheDir, "manifest.db")
			}
			store, err := manifest.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			all, err := store.Entries(cmd.Context(), "")
			if err != nil {
				return err
			}
			var entries []manifest.Entry
			for _, e := range all {
				if strings.HasPrefix(e.Key, key) {
					entries = append(entries, e)
				}
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no cache entries")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tRECORD\tWINDOWS\tPOSITIVES\tFROM CACHE\tRUN\tCREATED")
			var total int
			for _, e := range entries {
				total += e.Windows
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\t%s\t%s\n", shortKey(e.Key), e.RecordID, e.Windows, e.Positives,
					e.Cached, strings.SplitN(e.RunID, "-", 2)[0], humanize.Time(e.CreatedAt))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s entries, %s windows\n",
				humanize.Comma(int64(len(entries))), humanize.Comma(int64(total)))
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "only list entries whose cache key starts with this prefix")
	return cmd
}

func shortKey(k string) string {
	if len(k) > 16 {
		return k[:16]
	}
	return k
}
