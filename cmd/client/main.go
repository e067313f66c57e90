// Package main is the TimeKeeper command line client: it records time entries
// into the local store and synchronizes them to the ERP.
package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atinyakov/TimeKeeper/internal/client"
	"github.com/atinyakov/TimeKeeper/internal/config"
	"github.com/atinyakov/TimeKeeper/internal/logger"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

// skipApp marks commands that run without the local store.
const skipApp = "skip-app"

// cli is the state shared by every command of one invocation.
type cli struct {
	in  io.Reader
	out io.Writer

	configPath string
	app        *app
	prompter   *client.Prompter
}

// prompt returns the single prompter reading from the command input.
func (c *cli) prompt() *client.Prompter {
	if c.prompter == nil {
		c.prompter = client.NewPrompter(c.in, c.out)
	}
	return c.prompter
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// execute runs one invocation and releases the local store afterwards.
func execute(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	root, c := newRootCmd(in, out)
	defer c.close()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(in io.Reader, out io.Writer) (*cobra.Command, *cli) {
	c := &cli{in: in, out: out}

	root := &cobra.Command{
		Use:           "timekeeper",
		Short:         "Record time entries offline and sync them to the ERP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipApp] != "" {
				return nil
			}
			return c.open(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) { c.close() },
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to the config file")
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)

	root.AddCommand(newCommands(c)...)
	root.AddCommand(newShellCmd(c), newVersionCmd())
	return root, c
}

func (c *cli) close() {
	if c.app != nil {
		c.app.close()
		c.app = nil
	}
}

func (c *cli) open(ctx context.Context) error {
	opts, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	log, err := logger.NewConsole(opts.LogLevel)
	if err != nil {
		return err
	}
	c.app, err = newApp(ctx, opts, log, c.out)
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print build version and date",
		Annotations: map[string]string{skipApp: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "TimeKeeper Client\nVersion: %s\nBuild Date: %s\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		},
	}
}

