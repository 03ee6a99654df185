package commands

import (
	"github.com/spf13/cobra"

	"github.com/nonibytes/mango/internal/cliutil"
	"github.com/nonibytes/mango/mango/cache"
)

func NewCacheCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the persisted template cache",
	}
	cmd.AddCommand(newCacheWarmCmd(env), newCacheStatsCmd(env))
	return cmd
}

func newCacheWarmCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Restore persisted templates and report what was loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := cliutil.Open(ctx, env.G.Config, env.Log)
			if err != nil {
				return err
			}
			defer env.close(ctx, rt)

			report, err := rt.Engine.Warm(ctx)
			if err != nil {
				return err
			}
			cliutil.PrintJSON(env.Out, report)
			return nil
		},
	}
}

type cacheStats struct {
	Predicates cache.Stats `json:"predicates"`
	Analyses   cache.Stats `json:"analyses"`
}

func newCacheStatsCmd(env *Env) *cobra.Command {
	var keys bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the cached templates after a warm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer env.close(ctx, rt)

			out := cacheStats{
				Predicates: rt.Engine.Stats(cache.PrefixPredicate),
				Analyses:   rt.Engine.Stats(cache.PrefixAnalysis),
			}
			if !keys {
				out.Predicates.Keys = nil
				out.Analyses.Keys = nil
			}
			cliutil.PrintJSON(env.Out, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keys, "keys", false, "include cache keys")
	return cmd
}
