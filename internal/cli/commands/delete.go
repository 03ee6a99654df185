package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nonibytes/mango/mango"
	"github.com/nonibytes/mango/mango/storage"
)

func NewDeleteCmd(env *Env) *cobra.Command {
	var (
		ids []string
		f   queryFlags
		all bool
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete documents by id or selector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			byWhere := cmd.Flags().Changed("where")
			switch {
			case len(ids) > 0 && byWhere:
				return usagef("use either --id or --where")
			case len(ids) == 0 && !byWhere && !all:
				return usagef("provide --id, --where or --all")
			}
			ctx := cmd.Context()
			rt, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer env.close(ctx, rt)

			if len(ids) == 0 {
				q, err := f.query()
				if err != nil {
					return err
				}
				coll, err := rt.Engine.PlanQuery(rt.Store, q)
				if err != nil {
					return err
				}
				docs, err := coll.ToArray(ctx)
				if err != nil {
					return mango.Wrap(mango.ErrStorage, "find documents", err)
				}
				for _, d := range docs {
					if id, ok := d[storage.IDField].(string); ok {
						ids = append(ids, id)
					}
				}
			}
			for _, id := range ids {
				if err := rt.Store.Delete(ctx, id); err != nil {
					return mango.Wrap(mango.ErrStorage, "delete "+id, err)
				}
			}
			fmt.Fprintf(env.Out, "deleted %d\n", len(ids))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&ids, "id", nil, "document id (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "delete every document")
	f.bind(cmd)
	return cmd
}
