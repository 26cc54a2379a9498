// Command psgprep prepares sleep recordings for event detection training:
// it splits records into partitions, inspects the anchor set, precomputes
// dataset caches and plots individual windows.
package main

import (
	"flag"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/sleepEvents/datamodule"
)

// options shared by every subcommand.
type rootOptions struct {
	configPath string
	dataDir    string
	cacheDir   string
	jobs       int
	nRecords   int

	cfg datamodule.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "psgprep",
		Short:         "Prepare polysomnography recordings for event detection",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file")
	pf.StringVar(&opts.dataDir, "data-dir", "", "record directory (overrides data_dir)")
	pf.StringVar(&opts.cacheDir, "cache-dir", "", "cache directory (overrides cache_dir)")
	pf.IntVarP(&opts.jobs, "jobs", "j", 0, "records preprocessed in parallel, -1 for all CPUs (overrides n_jobs)")
	pf.IntVar(&opts.nRecords, "n-records", 0, "use only the first n records of each partition (overrides n_records)")

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	pf.AddGoFlagSet(klogFlags)

	rootCmd.AddCommand(
		newSplitCmd(opts),
		newAnchorsCmd(opts),
		newPrecomputeCmd(opts),
		newInspectCmd(opts),
		newPlotCmd(opts),
	)
	return rootCmd
}

// load reads the configuration file and applies flag overrides.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := datamodule.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir = o.cacheDir
	}
	if flags.Changed("jobs") {
		cfg.NJobs = o.jobs
	}
	if flags.Changed("n-records") {
		cfg.NRecords = o.nRecords
	}
	o.cfg = cfg
	return nil
}
