package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nonibytes/mango/internal/cli/commands"
	"github.com/nonibytes/mango/internal/cliopt"
	"github.com/nonibytes/mango/internal/config"
	"github.com/nonibytes/mango/internal/logger"
)

// Execute runs the CLI and returns an exit code.
func Execute(argv []string) int {
	return Run(context.Background(), argv, os.Stdin, os.Stdout, os.Stderr)
}

// Run is Execute with explicit streams. Exit codes: 0 ok, 1 failure,
// 2 bad usage or a malformed query.
func Run(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	g := cliopt.DefaultGlobalOptions()
	env := &commands.Env{G: &g, In: stdin, Out: stdout, Err: stderr, Log: zap.NewNop()}

	root := newRoot(env)
	root.SetArgs(argv)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	logger.Sync()
	if err == nil {
		return 0
	}
	fmt.Fprintln(stderr, "error:", err)
	if commands.IsUsage(err) || strings.HasPrefix(err.Error(), "unknown command") {
		return 2
	}
	return 1
}

func newRoot(env *commands.Env) *cobra.Command {
	root := &cobra.Command{
		Use:   "mango",
		Short: "Compile and plan Mango selectors against document tables",
		Long: `mango stores JSON documents and runs Mango selector queries over them.

Configuration comes from flags, MANGO_* environment variables (MANGO_SQLITE_PATH,
MANGO_CACHE_EXPIRY, ...) and an optional mango.yaml, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.Options{
				File:  env.G.ConfigFile,
				Flags: cmd.Flags(),
			})
			if err != nil {
				return &commands.UsageError{Err: err}
			}
			env.G.Config = cfg
			env.Log = logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, env.Err)
			return nil
		},
	}
	cliopt.BindGlobalFlags(root.PersistentFlags(), env.G)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &commands.UsageError{Err: err}
	})

	root.AddCommand(
		commands.NewPutCmd(env),
		commands.NewQueryCmd(env),
		commands.NewExplainCmd(env),
		commands.NewFilterCmd(env),
		commands.NewDeleteCmd(env),
		commands.NewCacheCmd(env),
	)
	return root
}
