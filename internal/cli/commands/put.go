package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nonibytes/mango/mango/storage"
)

func NewPutCmd(env *Env) *cobra.Command {
	var (
		doc        string
		importPath string
	)
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Store JSON documents",
		Long: `Store documents in the configured table. Documents come from --doc, from a
JSON lines file given with --import, or from stdin. A document without an
"_id" gets a generated one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if doc != "" && importPath != "" {
				return usagef("use either --doc or --import")
			}
			ctx := cmd.Context()
			rt, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer env.close(ctx, rt)

			// single doc mode
			if doc != "" {
				var d storage.Document
				if err := json.Unmarshal([]byte(doc), &d); err != nil || d == nil {
					return usagef("--doc must be a JSON object")
				}
				id, err := rt.Store.Put(ctx, d)
				if err != nil {
					return err
				}
				fmt.Fprintln(env.Out, id)
				return nil
			}

			var count int
			if importPath != "" {
				count, err = importFile(ctx, rt.Store, importPath)
			} else {
				count, err = importDocs(ctx, rt.Store, env.In)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "imported %d\n", count)
			return nil
		},
	}
	cmd.Flags().StringVarP(&doc, "doc", "d", "", "a single JSON document")
	cmd.Flags().StringVar(&importPath, "import", "", "JSON lines file to import")
	return cmd
}
