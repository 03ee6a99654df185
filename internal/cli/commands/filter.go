package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nonibytes/mango/internal/cliutil"
	"github.com/nonibytes/mango/mango/storage"
)

func NewFilterCmd(env *Env) *cobra.Command {
	var (
		where string
		input string
		count bool
	)
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Filter JSON lines with a selector",
		Long: `Compile a selector and print the JSON lines of stdin (or --input) that match
it, unchanged. No table is read; the compiled template is still cached and
persisted like any other.`,
		Example: `  cat events.jsonl | mango filter -w '{"level":{"$in":["warn","error"]}}'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := parseSelector(where)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer env.close(ctx, rt)

			pred, err := rt.Engine.Compile(sel)
			if err != nil {
				return err
			}

			var r io.Reader = env.In
			if input != "" {
				f, err := os.Open(input)
				if err != nil {
					return &UsageError{Err: err}
				}
				defer f.Close()
				r = f
			}

			matched := 0
			err = cliutil.ReadJSONLines(r, func(line []byte, doc storage.Document) error {
				if !pred(doc) {
					return nil
				}
				matched++
				if count {
					return nil
				}
				_, err := fmt.Fprintf(env.Out, "%s\n", line)
				return err
			})
			if err != nil {
				return err
			}
			if count {
				fmt.Fprintln(env.Out, matched)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&where, "where", "w", "{}", "selector JSON")
	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON lines file (default stdin)")
	cmd.Flags().BoolVarP(&count, "count", "c", false, "print only the number of matches")
	return cmd
}
