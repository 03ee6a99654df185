package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nonibytes/mango/internal/cliutil"
	"github.com/nonibytes/mango/mango"
)

// queryFlags are shared by query, explain and delete.
type queryFlags struct {
	where      string
	sort       string
	limit      int
	importPath string
}

func (f *queryFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.where, "where", "w", "{}", "selector JSON")
	cmd.Flags().StringVarP(&f.sort, "sort", "s", "", `sort: "field", "-field" or Mango sort JSON`)
	cmd.Flags().IntVarP(&f.limit, "limit", "n", -1, "maximum documents (-1 for no limit)")
}

func (f *queryFlags) bindImport(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.importPath, "import", "", "JSON lines file stored before the query runs")
}

func (f *queryFlags) query() (mango.Query, error) {
	sel, err := parseSelector(f.where)
	if err != nil {
		return mango.Query{}, err
	}
	sort, err := parseSort(f.sort)
	if err != nil {
		return mango.Query{}, err
	}
	q := mango.Query{Selector: sel, Sort: sort}
	if f.limit >= 0 {
		limit := f.limit
		q.Limit = &limit
	}
	return q, nil
}

func (f *queryFlags) load(ctx context.Context, rt *cliutil.Runtime) error {
	if f.importPath == "" {
		return nil
	}
	_, err := importFile(ctx, rt.Store, f.importPath)
	return err
}

func NewQueryCmd(env *Env) *cobra.Command {
	var (
		f       queryFlags
		explain bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Find documents matching a selector",
		Long: `Plan a Mango selector against the configured table and print the matching
documents. The planner pushes one indexable condition into the table and
filters the rest in memory.`,
		Example: `  mango query -w '{"age":{"$gte":21},"city":"NYC"}' -s -age -n 10
  mango query --backend memory --import people.jsonl -w '{"tags":{"$all":["a"]}}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := f.query()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer env.close(ctx, rt)
			if err := f.load(ctx, rt); err != nil {
				return err
			}

			if explain {
				ex, err := rt.Engine.Explain(rt.Store, q)
				if err != nil {
					return err
				}
				cliutil.PrintJSON(env.Out, ex)
				return nil
			}
			coll, err := rt.Engine.PlanQuery(rt.Store, q)
			if err != nil {
				return err
			}
			docs, err := coll.ToArray(ctx)
			if err != nil {
				return mango.Wrap(mango.ErrStorage, "run query", err)
			}
			return cliutil.WriteDocs(env.Out, env.format(), docs)
		},
	}
	f.bind(cmd)
	f.bindImport(cmd)
	cmd.Flags().BoolVar(&explain, "explain", false, "print the plan instead of the documents")
	return cmd
}

func NewExplainCmd(env *Env) *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show how a query would be planned",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := f.query()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer env.close(ctx, rt)

			ex, err := rt.Engine.Explain(rt.Store, q)
			if err != nil {
				return err
			}
			cliutil.PrintJSON(env.Out, ex)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}
