package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clausebit/companion/internal/cache"
	"github.com/clausebit/companion/internal/clock"
	"github.com/clausebit/companion/internal/presenter"
)

func newSummaryCmd(opts *options) *cobra.Command {
	var (
		cachePath  string
		noCache    bool
		cachedOnly bool
	)

	cmd := &cobra.Command{
		Use:   "summary <url>",
		Short: "Show the risk summary for a site",
		Long: `Show the risk summary for the site at <url>.

The cached summary is printed first, then a fresh one from the backend.
Use --output json for machine-readable views.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var store cache.Store = cache.NewMemoryStore()
			if !noCache {
				path := cachePath
				if path == "" {
					path = opts.cfg.CachePath
				}
				sqlite, err := cache.OpenSQLite(cmd.Context(), path)
				if err != nil {
					return err
				}
				defer sqlite.Close()
				store = sqlite
			}

			p := presenter.New(opts.client, cache.NewReconciler(store, clock.Real()), presenter.Options{
				FetchTimeout: opts.timeout,
			}, opts.log)

			format := presenter.FormatText
			if opts.output == outputJSON {
				format = presenter.FormatJSON
			} else if opts.output == outputYAML {
				return fmt.Errorf("summary supports text or json output")
			}
			renderer, err := presenter.NewRenderer(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			ctx := opts.context(cmd.Context())
			if cachedOnly {
				view, err := p.Cached(ctx, args[0])
				if err != nil {
					return err
				}
				return renderer.Render(ctx, view)
			}

			// The cached paint and the refreshed one are separated by a rule
			// in text mode.
			first := true
			sep := presenter.RendererFunc(func(ctx context.Context, v presenter.View) error {
				if !first && format == presenter.FormatText {
					fmt.Fprintln(cmd.OutOrStdout(), "---")
				}
				first = false
				return renderer.Render(ctx, v)
			})
			_, err = p.Open(ctx, "cli", args[0], sep)
			return err
		},
	}

	cmd.Flags().StringVar(&cachePath, "cache", "", "Summary cache database (default $CACHE_PATH)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Keep summaries in memory only")
	cmd.Flags().BoolVar(&cachedOnly, "cached", false, "Print the cached summary without contacting the backend")
	return cmd
}
