// Package client contains the interactive terminal prompts of the CLI.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atinyakov/TimeKeeper/internal/models"
)

// ErrInputClosed is returned when the input ends before all answers were read.
var ErrInputClosed = errors.New("input closed")

// Prompter asks questions on out and reads answers line by line from in.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewPrompter returns a Prompter over the given streams.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(in), out: out}
}

// ReadLine prints prompt and returns the next trimmed input line.
func (p *Prompter) ReadLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", ErrInputClosed
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

// ask prints label and returns the trimmed answer, or def when the answer is empty.
func (p *Prompter) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", ErrInputClosed
	}
	answer := strings.TrimSpace(p.scanner.Text())
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// PromptForEntry asks for the fields of a new time entry. today is offered as the
// default date; known projects are listed for reference.
func (p *Prompter) PromptForEntry(projects []models.Project, today string) (models.EntryInput, error) {
	var in models.EntryInput
	var err error

	if in.Date, err = p.ask("Date (YYYY-MM-DD)", today); err != nil {
		return in, err
	}

	if len(projects) > 0 {
		fmt.Fprintln(p.out, "Projects:")
		for _, pr := range projects {
			if pr.Customer != "" {
				fmt.Fprintf(p.out, "  %s  %s (%s)\n", pr.ID, pr.Name, pr.Customer)
			} else {
				fmt.Fprintf(p.out, "  %s  %s\n", pr.ID, pr.Name)
			}
		}
	}
	if in.Project, err = p.ask("Project id", ""); err != nil {
		return in, err
	}

	rawHours, err := p.ask("Hours", "")
	if err != nil {
		return in, err
	}
	if in.Hours, err = decimal.NewFromString(rawHours); err != nil {
		return in, fmt.Errorf("%w: hours %q is not a number", models.ErrInvalidEntry, rawHours)
	}

	if in.Description, err = p.ask("Description", ""); err != nil {
		return in, err
	}
	return in, nil
}

// PromptForSettings asks for connection settings, offering current values as defaults.
// Secrets are never shown as defaults.
func (p *Prompter) PromptForSettings(current models.Settings) (models.Settings, error) {
	out := models.Settings{ScriptID: current.ScriptID, DeployID: current.DeployID}
	var err error

	if out.RemoteBaseURL, err = p.ask("ERP base URL (e.g. https://1234567.app.netsuite.com)", current.RemoteBaseURL); err != nil {
		return out, err
	}
	if out.AccountID, err = p.ask("Account ID (blank to derive from the URL)", current.AccountID); err != nil {
		return out, err
	}
	if out.EmployeeID, err = p.ask("Employee ID (optional)", current.EmployeeID); err != nil {
		return out, err
	}

	scheme := string(models.SchemePassword)
	if current.Credentials.Token != nil {
		scheme = string(models.SchemeToken)
	}
	if scheme, err = p.ask("Authentication (password/token)", scheme); err != nil {
		return out, err
	}

	switch models.AuthScheme(strings.ToLower(scheme)) {
	case models.SchemePassword:
		var c models.PasswordCredentials
		if c.Username, err = p.ask("Username", usernameOf(current)); err != nil {
			return out, err
		}
		if c.Password, err = p.ask("Password", ""); err != nil {
			return out, err
		}
		out.Credentials.Password = &c
	case models.SchemeToken:
		var c models.TokenCredentials
		for _, f := range []struct {
			label string
			dst   *string
		}{
			{"Consumer key", &c.ConsumerKey},
			{"Consumer secret", &c.ConsumerSecret},
			{"Token ID", &c.TokenID},
			{"Token secret", &c.TokenSecret},
		} {
			if *f.dst, err = p.ask(f.label, ""); err != nil {
				return out, err
			}
		}
		if out.ScriptID, err = p.ask("Restlet script id", current.ScriptID); err != nil {
			return out, err
		}
		if out.DeployID, err = p.ask("Restlet deploy id", current.DeployID); err != nil {
			return out, err
		}
		out.Credentials.Token = &c
	default:
		return out, fmt.Errorf("%w: unknown authentication %q", models.ErrInvalidSettings, scheme)
	}
	return out, nil
}

func usernameOf(s models.Settings) string {
	if s.Credentials.Password == nil {
		return ""
	}
	return s.Credentials.Password.Username
}
