package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/atinyakov/TimeKeeper/internal/models"
	"github.com/atinyakov/TimeKeeper/internal/service"
)

// errNoSettings is shown when a command needs a configured ERP.
var errNoSettings = errors.New("no ERP settings saved, run 'timekeeper settings set' first")

// newCommands returns the commands shared by the root command and the shell.
func newCommands(c *cli) []*cobra.Command {
	return []*cobra.Command{
		newAddCmd(c),
		newListCmd(c),
		newStatusCmd(c),
		newSyncCmd(c),
		newWatchCmd(c),
		newProjectsCmd(c),
		newSettingsCmd(c),
	}
}

func newAddCmd(c *cli) *cobra.Command {
	var (
		in          models.EntryInput
		hours       string
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a time entry and push it when the ERP is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := c.app
			a.refreshConnectivity(ctx)

			if interactive {
				var err error
				if in, err = c.prompt().PromptForEntry(a.session.Projects(), today()); err != nil {
					return err
				}
			} else {
				h, err := decimal.NewFromString(hours)
				if err != nil {
					return fmt.Errorf("%w: hours %q is not a number", models.ErrInvalidEntry, hours)
				}
				in.Hours = h
			}

			entry, err := a.coord.CreateEntry(ctx, in)
			if entry.ID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %s %s\n", entry.ID, describeStatus(entry))
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Date, "date", today(), "work date (YYYY-MM-DD)")
	f.StringVarP(&in.Project, "project", "p", "", "project id")
	f.StringVar(&hours, "hours", "", "hours worked, e.g. 1.5")
	f.StringVarP(&in.Description, "description", "d", "", "what was done")
	f.BoolVarP(&interactive, "interactive", "i", false, "prompt for the entry fields")
	return cmd
}

func newListCmd(c *cli) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded time entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var (
				entries []models.TimeEntry
				err     error
			)
			if status == "" {
				entries, err = c.app.coord.Entries(ctx)
			} else {
				var s models.Status
				if s, err = models.ParseStatus(status); err != nil {
					return err
				}
				entries, err = c.app.coord.EntriesByStatus(ctx, s)
			}
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), entries, c.app.session.Projects())
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "only entries with this status (pending, submitted, error)")
	return cmd
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and entry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := c.app
			out := cmd.OutOrStdout()

			settings, configured := a.settings.Current()
			if configured {
				fmt.Fprintf(out, "ERP:    %s (account %s)\n", settings.RemoteBaseURL, settings.AccountID)
				online := a.Probe(ctx)
				fmt.Fprintf(out, "Online: %t\n", online)
			} else {
				fmt.Fprintln(out, "ERP:    not configured")
			}

			counts, err := a.coord.Counts(ctx)
			if err != nil {
				return err
			}
			for _, s := range models.Statuses {
				fmt.Fprintf(out, "%-10s %d\n", s+":", counts[s])
			}
			return nil
		},
	}
}

func newSyncCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push every pending entry now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.app.coord.Sweep(cmd.Context())
			if errors.Is(err, service.ErrNotConfigured) {
				return errNoSettings
			}
			printSweep(cmd.OutOrStdout(), res)
			return err
		},
	}
}

func newWatchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Monitor connectivity and push pending entries whenever the ERP comes back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			if _, ok := a.settings.Current(); !ok {
				return errNoSettings
			}
			a.follow.Store(true)
			defer a.follow.Store(false)

			fmt.Fprintf(cmd.OutOrStdout(), "Watching every %s, press Ctrl+C to stop\n", a.opts.Monitor.ProbeInterval)
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			a.startCheckpointer(ctx)
			err := a.newMonitor().Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func newProjectsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List the projects time can be booked against",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projects, err := c.app.settings.Projects(cmd.Context())
			if errors.Is(err, service.ErrNotConfigured) {
				return errNoSettings
			}
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCUSTOMER")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Customer)
			}
			return w.Flush()
		},
	}
}

func newSettingsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the ERP connection settings",
	}
	cmd.AddCommand(newSettingsShowCmd(c), newSettingsSetCmd(c))
	return cmd
}

func newSettingsShowCmd(c *cli) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the saved settings with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, ok := c.app.settings.Current()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No settings saved.")
				return nil
			}
			redacted := settings.Redacted()
			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(redacted)
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(redacted); err != nil {
					return err
				}
				return enc.Close()
			}
			return fmt.Errorf("unknown output format %q", output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	return cmd
}

func newSettingsSetCmd(c *cli) *cobra.Command {
	var (
		s           models.Settings
		pw          models.PasswordCredentials
		tok         models.TokenCredentials
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Test and save ERP connection settings",
		Long: "Authenticates with the given settings first; they are saved only when\n" +
			"authentication succeeds. Pass either --username/--password or the four token flags.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := c.app
			current, _ := a.settings.Current()

			if interactive {
				var err error
				if s, err = c.prompt().PromptForSettings(current); err != nil {
					return err
				}
			} else {
				if pw != (models.PasswordCredentials{}) {
					s.Credentials.Password = &pw
				}
				if tok != (models.TokenCredentials{}) {
					s.Credentials.Token = &tok
				}
			}

			err := a.settings.Update(ctx, s)
			switch {
			case errors.Is(err, service.ErrProjectsUnavailable):
				fmt.Fprintf(cmd.OutOrStdout(), "Settings saved, but projects could not be loaded: %v\n", err)
				return nil
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settings saved, %d projects available.\n", len(a.session.Projects()))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&s.RemoteBaseURL, "url", "", "ERP base URL, e.g. https://1234567.app.netsuite.com")
	f.StringVar(&s.AccountID, "account", "", "account id (derived from the URL when omitted)")
	f.StringVar(&s.EmployeeID, "employee", "", "employee id sent with REST bookings")
	f.StringVar(&s.ScriptID, "script", "", "restlet script id")
	f.StringVar(&s.DeployID, "deploy", "", "restlet deploy id")
	f.StringVar(&pw.Username, "username", "", "password grant username")
	f.StringVar(&pw.Password, "password", "", "password grant password")
	f.StringVar(&tok.ConsumerKey, "consumer-key", "", "token-based consumer key")
	f.StringVar(&tok.ConsumerSecret, "consumer-secret", "", "token-based consumer secret")
	f.StringVar(&tok.TokenID, "token-id", "", "token-based token id")
	f.StringVar(&tok.TokenSecret, "token-secret", "", "token-based token secret")
	f.BoolVarP(&interactive, "interactive", "i", false, "prompt for the settings")
	return cmd
}

func today() string {
	return time.Now().Format(models.DateLayout)
}

func describeStatus(e models.TimeEntry) string {
	switch e.Status {
	case models.StatusSubmitted:
		if e.RemoteID != "" {
			return fmt.Sprintf("submitted (ERP id %s)", e.RemoteID)
		}
		return "submitted"
	case models.StatusError:
		return fmt.Sprintf("failed: %s", e.LastError)
	}
	return "saved, pending sync"
}

func printEntries(out io.Writer, entries []models.TimeEntry, projects []models.Project) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No entries.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tPROJECT\tHOURS\tDESCRIPTION\tSTATUS\tDETAIL")
	for _, e := range entries {
		detail := e.RemoteID
		if e.Status == models.StatusError {
			detail = e.LastError
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Date, projectName(projects, e.Project), e.Hours, e.Description, e.Status, detail)
	}
	_ = w.Flush()
}

// projectName resolves id against the cached projects; offline or unknown ids print as is.
func projectName(projects []models.Project, id string) string {
	if p, ok := models.FindProject(projects, id); ok {
		return p.Name
	}
	return id
}

func printSweep(out io.Writer, res service.SweepResult) {
	if res.Attempted == 0 && res.Skipped == 0 {
		fmt.Fprintln(out, "Nothing to sync.")
		return
	}
	fmt.Fprintf(out, "Synced %d entries: %d submitted, %d failed, %d skipped.\n",
		res.Attempted, res.Submitted, res.Failed, res.Skipped)
}
