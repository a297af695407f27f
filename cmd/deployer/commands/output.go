package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	core "github.com/openfroyo/deployer/pkg/commands"
	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/stores"
)

// jsonEnvelope is the single document written with --output json.
type jsonEnvelope struct {
	OK     bool                `json:"ok"`
	Result any                 `json:"result,omitempty"`
	Error  *engine.EngineError `json:"error,omitempty"`
}

func (o *options) stderr() io.Writer {
	if o.errOut == nil {
		return os.Stderr
	}
	return o.errOut
}

func (o *options) stdout() io.Writer {
	if o.out == nil {
		return os.Stdout
	}
	return o.out
}

func (o *options) writeJSON(result any, err error) {
	env := jsonEnvelope{OK: err == nil, Result: result}
	if err != nil {
		env.Error = engine.Classify(err)
		if env.Error.Remediation == "" {
			env.Error = env.Error.WithHelp(env.Error.Help())
		}
	}
	enc := json.NewEncoder(o.stdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(env); encErr != nil {
		fmt.Fprintf(o.stderr(), "Error: cannot encode output: %v\n", encErr)
	}
}

// reportError writes err and its remediation to stderr.
func (o *options) reportError(err error) {
	w := o.stderr()
	e, ok := engine.AsEngineError(err)
	if !ok {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Error: %s\n", e.Error())
	if help := e.Help(); help != "" {
		fmt.Fprintf(w, "\n%s\n", help)
	}
}

func renderText(w io.Writer, result any) {
	switch r := result.(type) {
	case *core.CreateResult:
		fmt.Fprintf(w, "Environment %s created (instance %s, provider %s).\n", r.Name, r.InstanceName, r.Provider)
		warnings(w, r.Warnings)
		next(w, fmt.Sprintf("deployer provision %s", r.Name))
	case *core.ProvisionResult:
		report(w, r.Execution)
		if r.SSHUser == "" {
			return
		}
		fmt.Fprintf(w, "Environment %s provisioned.\n\n", r.Name)
		fields(w,
			"Instance IP", r.InstanceIP,
			"Provider", string(r.Provider),
			"SSH", fmt.Sprintf("ssh -i %s -p %d %s@%s", r.SSHKeyPath, r.SSHPort, r.SSHUser, r.InstanceIP),
			"Domains", strings.Join(r.Domains, ", "),
			"Provisioned", stamp(r.ProvisionedAt),
		)
		warnings(w, r.Warnings)
		next(w, fmt.Sprintf("deployer configure %s", r.Name))
	case *core.ConfigureResult:
		report(w, r.Execution)
		if r.ConfiguredAt.IsZero() {
			return
		}
		fmt.Fprintf(w, "Environment %s configured at %s.\n", r.Name, stamp(r.ConfiguredAt))
		warnings(w, r.Warnings)
		next(w, fmt.Sprintf("deployer release %s", r.Name))
	case *core.ReleaseResult:
		report(w, r.Execution)
		if r.ReleasedAt.IsZero() {
			return
		}
		fmt.Fprintf(w, "Released %d files to %s (compose digest %s).\n", len(r.Files), r.InstanceIP, short(r.ComposeDigest))
		warnings(w, r.Warnings)
		next(w, fmt.Sprintf("deployer run %s", r.Name))
	case *core.RunResult:
		report(w, r.Execution)
		if r.StartedAt.IsZero() {
			return
		}
		fmt.Fprintf(w, "Environment %s is running.\n\n", r.Name)
		for _, e := range r.Endpoints {
			fmt.Fprintf(w, "  %s\n", e)
		}
		warnings(w, r.Warnings)
	case *core.TestResult:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, c := range r.Checks {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Status, c.Name, c.Detail)
		}
		_ = tw.Flush()
		if r.Passed() {
			fmt.Fprintf(w, "\nAll checks passed for %s (%s).\n", r.Name, r.State)
		}
	case *core.DestroyResult:
		report(w, r.Execution)
		if r.DestroyedAt.IsZero() {
			return
		}
		fmt.Fprintf(w, "Environment %s destroyed (was %s).\n", r.Name, r.PreviousState)
		warnings(w, r.Warnings)
		next(w, fmt.Sprintf("deployer purge %s", r.Name))
	case *core.PurgeResult:
		if r.AlreadyAbsent {
			fmt.Fprintf(w, "Environment %s does not exist; nothing to purge.\n", r.Name)
			return
		}
		fmt.Fprintf(w, "Environment %s purged.\n", r.Name)
		warnings(w, r.Warnings)
	case *core.ListResult:
		if len(r.Environments) == 0 && len(r.Failures) == 0 {
			fmt.Fprintln(w, "No environments.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSTATE\tPROVIDER\tIP\tUPDATED")
		for _, e := range r.Environments {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.State, e.Provider, dash(e.InstanceIP), stamp(e.UpdatedAt))
		}
		_ = tw.Flush()
		for _, f := range r.Failures {
			fmt.Fprintf(w, "\nWarning: cannot load %s: %s\n", f.Name, f.Error)
			if f.Help != "" {
				fmt.Fprintf(w, "  %s\n", f.Help)
			}
		}
	case *core.ShowResult:
		fields(w,
			"Name", string(r.Name),
			"State", string(r.State),
			"Instance", r.InstanceName,
			"Provider", string(r.Provider.Kind),
			"Instance IP", r.InstanceIP,
			"SSH user", r.SSHUser,
			"SSH key", r.SSHKeyPath,
			"Domains", strings.Join(r.Services.Domains(), ", "),
			"Compose digest", short(r.ComposeDigest),
			"Created", stamp(r.CreatedAt),
			"Updated", stamp(r.UpdatedAt),
		)
		if len(r.Endpoints) > 0 {
			fmt.Fprintln(w, "\nEndpoints:")
			for _, e := range r.Endpoints {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		if r.NextCommand != "" {
			next(w, fmt.Sprintf("deployer %s %s", r.NextCommand, r.Name))
		}
	case *core.HistoryResult:
		renderHistory(w, r)
	case *stores.RunDetail:
		renderRunDetail(w, r)
	default:
		fmt.Fprintf(w, "%+v\n", result)
	}
}

// report prints the step outcomes of a failed command.
func report(w io.Writer, exec *engine.CommandResult) {
	if exec == nil || exec.Succeeded() {
		return
	}
	for _, s := range exec.Steps {
		fmt.Fprintf(w, "  %-9s %s\n", s.Status, s.Name)
		for _, a := range s.Actions {
			if a.Status != engine.StatusFailed && a.Status != engine.StatusCancelled {
				continue
			}
			fmt.Fprintf(w, "  %-9s   %s (attempt %d): %s\n", a.Status, a.Name, a.Attempts, a.Error)
		}
	}
	fmt.Fprintln(w)
}

func renderHistory(w io.Writer, r *core.HistoryResult) {
	if len(r.Runs) == 0 {
		fmt.Fprintf(w, "No recorded runs for %s.\n", r.Name)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCOMMAND\tSTATUS\tSTARTED\tDURATION\tFAILED AT")
	for _, run := range r.Runs {
		failedAt := run.FailedStep
		if run.FailedAction != "" {
			failedAt += "/" + run.FailedAction
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.Command, run.Status, stamp(run.StartedAt), run.Duration.Round(time.Millisecond), dash(failedAt))
	}
	_ = tw.Flush()
}

func renderRunDetail(w io.Writer, d *stores.RunDetail) {
	run := d.Command
	fmt.Fprintf(w, "Run %s: %s %s %s\n", run.ID, run.Command, run.Environment, run.Status)
	if run.ErrorMessage != "" {
		fmt.Fprintf(w, "Error: %s\n", run.ErrorMessage)
	}
	if run.Help != "" {
		fmt.Fprintf(w, "%s\n", run.Help)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tACTION\tATTEMPT\tSTATUS\tDURATION\tERROR")
	for _, s := range d.Steps {
		fmt.Fprintf(tw, "%s\t\t\t%s\t%s\t%s\n", s.Name, s.Status, s.Duration.Round(time.Millisecond), s.Error)
		for _, a := range d.Actions {
			if a.StepID != s.ID {
				continue
			}
			fmt.Fprintf(tw, "\t%s\t%d\t%s\t%s\t%s\n", a.Name, a.Attempt, a.Status, a.Duration.Round(time.Millisecond), a.Error)
		}
	}
	_ = tw.Flush()
}

// fields prints label/value pairs, skipping empty values.
func fields(w io.Writer, kv ...string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		fmt.Fprintf(tw, "  %s:\t%s\n", kv[i], kv[i+1])
	}
	_ = tw.Flush()
}

func warnings(w io.Writer, ws []string) {
	for _, msg := range ws {
		fmt.Fprintf(w, "Warning: %s\n", msg)
	}
}

func next(w io.Writer, cmd string) {
	fmt.Fprintf(w, "\nNext: %s\n", cmd)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
