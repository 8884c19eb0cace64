package commands

import (
	"context"
	"os"
	"os/signal"
	"time"

	"ciquery/internal/filter"
	"ciquery/internal/query"
	"ciquery/internal/render"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// bareValue is what a filter flag given without a value holds. ParseArgs
// trims it away, leaving a filter with no values.
const bareValue = " "

var queryOpts struct {
	environments []string
	systems      []string
	format       string
	mergeSources bool
	parallel     int
	timeout      time.Duration
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the configured CI systems",
	Long: `Query the configured CI systems. Filter flags narrow the entities to
report; a filter flag given without a value requests its level unfiltered,
e.g. "ciquery query --jobs --builds" lists every job with its builds.
Values must be attached with '=' (--jobs=^periodic).`,
	Example: `  ciquery query --jobs=^periodic --build-status=failure --last-build
  ciquery query --tenants=openstack --jobs=tox --variants
  ciquery query --jobs --release=17.1 --controllers='>=3' --format table`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireEnvironments(); err != nil {
			return err
		}
		format, err := render.ParseFormat(queryOpts.format)
		if err != nil {
			return err
		}
		args, err := query.ParseArgs(collectFilters(cmd))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if queryOpts.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, queryOpts.timeout)
			defer cancel()
		}

		start := time.Now()
		rep, err := query.NewExecutor(cfg).Run(ctx, query.Options{
			Args:         args,
			Environments: queryOpts.environments,
			Systems:      queryOpts.systems,
			MergeSources: queryOpts.mergeSources,
			Parallel:     queryOpts.parallel,
		})
		if err != nil {
			return err
		}
		log.Debug().Dur("took", time.Since(start)).Strs("filters", args.Names()).Msg("Query finished")
		return render.Write(cmd.OutOrStdout(), format, rep)
	},
}

// collectFilters reads the filter flags the user set.
func collectFilters(cmd *cobra.Command) map[string][]string {
	raw := map[string][]string{}
	for _, a := range query.Arguments {
		f := cmd.Flags().Lookup(a.Flag())
		if f == nil || !f.Changed {
			continue
		}
		var values []string
		if a.Mode == filter.Regex {
			values, _ = cmd.Flags().GetStringArray(a.Flag())
		} else {
			values, _ = cmd.Flags().GetStringSlice(a.Flag())
		}
		raw[a.Name] = values
	}
	return raw
}

func init() {
	flags := queryCmd.Flags()
	for _, a := range query.Arguments {
		// Patterns may contain commas, so they are not split.
		if a.Mode == filter.Regex {
			flags.StringArray(a.Flag(), nil, a.Usage)
		} else {
			flags.StringSlice(a.Flag(), nil, a.Usage)
		}
		if a.Bare {
			flags.Lookup(a.Flag()).NoOptDefVal = bareValue
		}
	}

	flags.StringSliceVarP(&queryOpts.environments, "env", "e", nil, "environments to query (default all)")
	flags.StringSliceVarP(&queryOpts.systems, "system", "s", nil, "systems to query (default all)")
	flags.StringVarP(&queryOpts.format, "format", "f", string(render.Text), "output format: text, table or json")
	flags.BoolVar(&queryOpts.mergeSources, "merge-sources", false, "merge the answers of every capable source instead of stopping at the first")
	flags.IntVar(&queryOpts.parallel, "parallel", query.DefaultParallel, "systems resolved concurrently")
	flags.DurationVar(&queryOpts.timeout, "timeout", 0, "abort the query after this long (0 disables)")
}
