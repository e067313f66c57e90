package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atinyakov/TimeKeeper/internal/client"
)

func newShellCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session with background sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a := c.app
			a.follow.Store(true)
			a.startCheckpointer(ctx)
			a.newMonitor().Start(ctx)
			return repl(ctx, c)
		},
	}
}

// repl reads commands line by line and runs them against the open app
// until exit, end of input or cancellation.
func repl(ctx context.Context, c *cli) error {
	out := c.out
	for {
		line, err := c.prompt().ReadLine("timekeeper> ")
		if errors.Is(err, client.ErrInputClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Fprintln(out, "Available commands: add, list, status, sync, projects, settings show|set, help, exit")
			fmt.Fprintln(out, "Run '<command> --help' for flags; 'add' and 'settings set' prompt when given no flags.")
			continue
		case "exit", "quit":
			fmt.Fprintln(out, "Bye")
			return nil
		case "watch", "shell":
			fmt.Fprintf(out, "%s is not available inside the shell\n", args[0])
			continue
		}

		if err := runInShell(ctx, c, interactiveDefault(args)); err != nil {
			fmt.Fprintln(out, "Error:", err)
		}
	}
}

// runInShell executes one command line on a fresh command tree that shares the open app.
func runInShell(ctx context.Context, c *cli, args []string) error {
	root := &cobra.Command{Use: "timekeeper", SilenceUsage: true, SilenceErrors: true}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.out)
	root.AddCommand(newCommands(c)...)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// interactiveDefault turns a bare "add" or "settings set" into its prompting form.
func interactiveDefault(args []string) []string {
	switch {
	case len(args) == 1 && args[0] == "add":
		return []string{"add", "--interactive"}
	case len(args) == 2 && args[0] == "settings" && args[1] == "set":
		return []string{"settings", "set", "--interactive"}
	}
	return args
}
