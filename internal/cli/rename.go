package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hassrename/hren/internal/config"
	"github.com/hassrename/hren/internal/directory"
	"github.com/hassrename/hren/internal/history"
	"github.com/hassrename/hren/internal/mappingfile"
	"github.com/hassrename/hren/internal/pattern"
	"github.com/hassrename/hren/internal/plan"
	"github.com/hassrename/hren/internal/session"
	"github.com/hassrename/hren/internal/ui"
)

// labelSampleSize is how many label mappings the diagnostics show.
const labelSampleSize = 5

type renameOptions struct {
	search      string
	replace     string
	nameSearch  string
	nameReplace string
	idFromLabel bool
	inputFile   string
	outputFile  string
	yes         bool
	report      bool
}

var renameOpts renameOptions

var renameCmd = &cobra.Command{
	Use:   "rename",
	Short: "Preview and apply entity renames",
	Long: `Preview and apply entity renames.

Rule-driven: --search selects entities whose entity ID matches a regular
expression; --replace rewrites the matched part. --name-search and
--name-replace rewrite friendly names the same way. Replacements may refer
to capture groups as \1 or \g<name>.

File-driven: --input-file reads a mapping file (.csv, .yaml or .json) with
the columns Friendly Name, Current Entity ID and New Entity ID.

Without a replacement the matching entities are listed and nothing is
applied. --output-file writes the planned mapping so it can be edited and
fed back with --input-file.`,
	Example: `  hren rename --search '^light\.old_' --replace 'light.new_'
  hren rename -s '^sensor\.' --name-search 'Temp' --name-replace 'Temperature'
  hren rename -s '^switch\.' --id-from-label -o plan.csv
  hren rename -i plan.csv --yes`,
	Args: cobra.NoArgs,
	RunE: runRename,
}

// validateRenameFlags rejects flag combinations before any I/O happens.
func validateRenameFlags(flags *pflag.FlagSet) error {
	has := flags.Changed

	if has("input-file") {
		for _, name := range []string{"search", "replace", "name-search", "name-replace", "id-from-label"} {
			if has(name) {
				return &pattern.ConfigError{Field: name, Message: "cannot be combined with --input-file"}
			}
		}
		return nil
	}
	if has("replace") && !has("search") {
		return &pattern.ConfigError{Field: "replace", Message: "requires --search"}
	}
	if has("name-search") != has("name-replace") {
		return &pattern.ConfigError{Field: "name-search", Message: "--name-search and --name-replace must be given together"}
	}
	if has("id-from-label") && has("replace") {
		return &pattern.ConfigError{Field: "id-from-label", Message: "cannot be combined with --replace"}
	}
	if !has("search") {
		return &pattern.ConfigError{Field: "search", Message: "one of --search or --input-file is required"}
	}
	return nil
}

// compileRules turns the rule flags into plan rules.
func compileRules(opts renameOptions) (plan.Rules, error) {
	idRule, err := pattern.CompileField("replace", pattern.Rule{Search: opts.search, Replace: opts.replace})
	if err != nil {
		return plan.Rules{}, err
	}
	labelRule, err := pattern.CompileField("name-replace", pattern.Rule{Search: opts.nameSearch, Replace: opts.nameReplace})
	if err != nil {
		return plan.Rules{}, err
	}
	return plan.Rules{ID: idRule, Label: labelRule, IDFromLabel: opts.idFromLabel}, nil
}

// connection is the resolved Home Assistant endpoint.
type connection struct {
	host    string
	tls     bool
	token   string
	timeout time.Duration
}

func resolveConnection(conf *config.Config) (connection, error) {
	host, err := conf.RequireHost()
	if err != nil {
		return connection{}, err
	}
	token, err := conf.ResolveToken()
	if err != nil {
		return connection{}, err
	}
	timeout, err := conf.ReplyTimeoutDuration()
	if err != nil {
		return connection{}, err
	}
	return connection{host: host, tls: conf.TLS, token: token, timeout: timeout}, nil
}

func connectionSuggestion(err error) string {
	switch {
	case errors.Is(err, config.ErrNoHost):
		return "Set HASS_HOST or run 'hren config set --host <host:port>'"
	case errors.Is(err, config.ErrNoToken):
		return "Set HASS_TOKEN or run 'hren config set --token-prompt'"
	}
	return ""
}

// renameData is the JSON payload of a rename run.
type renameData struct {
	Source      plan.Source       `json:"source"`
	Fingerprint string            `json:"fingerprint"`
	Applicable  bool              `json:"applicable"`
	Applied     bool              `json:"applied"`
	Rows        []plan.Row        `json:"rows"`
	OutputFile  string            `json:"output_file,omitempty"`
	RunID       int64             `json:"run_id,omitempty"`
	Outcomes    []session.Outcome `json:"outcomes,omitempty"`
	Succeeded   int               `json:"succeeded"`
	Failed      int               `json:"failed"`
	NotSent     int               `json:"not_sent"`
}

func runRename(cmd *cobra.Command, args []string) error {
	if err := validateRenameFlags(cmd.Flags()); err != nil {
		return handleError(ErrConfigInvalid, err, "Run 'hren rename --help' for usage")
	}
	rules, err := compileRules(renameOpts)
	if err != nil {
		return handleError(ErrConfigInvalid, err, "")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	conf := getConfig()

	var warnings []Warning
	warn := func(code, message string) {
		warnings = append(warnings, Warning{Code: code, Message: message})
		if !isJSONOutput() {
			fmt.Println(ui.Warning(message))
		}
	}

	p, err := buildPlan(ctx, conf, rules)
	if err != nil {
		return handleError(planErrorCode(err), err, planErrorSuggestion(err))
	}

	data := renameData{
		Source:      p.Source,
		Fingerprint: p.Fingerprint(),
		Applicable:  p.Applicable(),
		Rows:        p.Rows,
	}

	if !isJSONOutput() {
		printPlan(p)
	}

	if renameOpts.outputFile != "" {
		if err := mappingfile.Write(renameOpts.outputFile, p.MappingTable()); err != nil {
			return handleError(ErrFileWriteError, err, "")
		}
		data.OutputFile = renameOpts.outputFile
		if !isJSONOutput() {
			fmt.Println(ui.Successf("Mapping written to %s", renameOpts.outputFile))
		}
		if msg := mappingfile.VolumeWarning(renameOpts.outputFile); msg != "" {
			warn(WarnVolumePath, msg)
		}
	}

	if !p.Applicable() {
		if isJSONOutput() {
			warnings = append(warnings, Warning{Code: WarnPreviewOnly, Message: "no replacement given; nothing to apply"})
			outputSuccessWithWarnings(data, warnings, &Meta{Count: p.Len()})
			return nil
		}
		fmt.Println(ui.Hint("No replacement given; nothing to apply."))
		return nil
	}

	conn, err := resolveConnection(conf)
	if err != nil {
		return handleError(errorCode(err), err, connectionSuggestion(err))
	}

	store := openHistory(conf, warn)
	if store != nil {
		defer store.Close()
		if previous, err := store.FindByFingerprint(ctx, data.Fingerprint); err == nil && len(previous) > 0 {
			last := previous[0]
			warn(WarnAlreadyApplied, fmt.Sprintf("This plan was already applied in run #%d on %s",
				last.ID, last.StartedAt.Local().Format(time.DateTime)))
		}
	}

	confirmed := confirmApply(p)

	sessionCfg := session.Config{
		URL:          session.URL(conn.host, conn.tls),
		Token:        conn.token,
		ReplyTimeout: conn.timeout,
		Logger:       logger,
	}
	if !isJSONOutput() {
		sessionCfg.OnOutcome = func(_ int, o session.Outcome) {
			fmt.Println(ui.OutcomeLine(o))
		}
	}

	started := time.Now()
	outcomes, applyErr := session.Apply(ctx, sessionCfg, p, confirmed)
	finished := time.Now()
	if errors.Is(applyErr, session.ErrNotConfirmed) {
		if isJSONOutput() {
			return handleErrorWithDetails(ErrConfirmationRequired, applyErr.Error(), "Re-run with --yes to apply", data)
		}
		fmt.Println(ui.Hint("Not confirmed; no changes were made."))
		return nil
	}

	run := &history.Run{
		Source:      p.Source,
		Host:        conn.host,
		Fingerprint: data.Fingerprint,
		StartedAt:   started,
		FinishedAt:  finished,
		Planned:     p.Len(),
		Outcomes:    outcomes,
	}
	if applyErr != nil {
		run.ChannelError = applyErr.Error()
	}
	if store != nil {
		if _, err := store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn("failed to record run", "error", err)
			warn(WarnHistoryFailed, fmt.Sprintf("Run was not recorded in history: %v", err))
		}
	}

	report := ui.Report{
		RunID:        run.ID,
		Host:         conn.host,
		Source:       p.Source,
		Planned:      p.Len(),
		Outcomes:     outcomes,
		ChannelError: run.ChannelError,
		Duration:     finished.Sub(started),
	}
	succeeded, failed := report.Counts()
	data.Applied = true
	data.RunID = run.ID
	data.Outcomes = outcomes
	data.Succeeded = succeeded
	data.Failed = failed
	data.NotSent = p.Len() - len(outcomes)

	if isJSONOutput() {
		if applyErr != nil {
			return handleErrorWithDetails(errorCode(applyErr), applyErr.Error(), channelSuggestion(applyErr), data)
		}
		outputSuccessWithWarnings(data, warnings, &Meta{Count: len(outcomes), DurationMs: report.Duration.Milliseconds()})
		return nil
	}

	fmt.Println()
	fmt.Println(report.Summary())
	if renameOpts.report {
		rendered, err := ui.RenderMarkdown(report.Markdown(), ui.NewDisplayContext().ReportWidth())
		if err != nil {
			logger.Warn("failed to render report", "error", err)
		} else {
			fmt.Print(rendered)
		}
	}
	if applyErr != nil {
		return applyErr
	}
	return nil
}

// buildPlan lists and filters entities, or reads the mapping file.
func buildPlan(ctx context.Context, conf *config.Config, rules plan.Rules) (*plan.Plan, error) {
	if renameOpts.inputFile != "" {
		rows, err := mappingfile.Read(renameOpts.inputFile)
		if err != nil {
			return nil, err
		}
		return plan.FromMapping(rows)
	}

	conn, err := resolveConnection(conf)
	if err != nil {
		return nil, err
	}
	client, err := directory.NewClient(directory.ClientConfig{
		BaseURL: directory.BaseURL(conn.host, conn.tls),
		Token:   conn.token,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	var spinner *ui.Spinner
	if !isJSONOutput() {
		spinner = ui.NewSpinner(os.Stderr, "Fetching entities from "+conn.host)
		spinner.Start()
	}
	entities, err := client.List(ctx, renameOpts.search)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return nil, err
	}
	return plan.FromEntities(entities, rules)
}

func planErrorCode(err error) string {
	if errors.Is(err, os.ErrNotExist) {
		return ErrFileNotFound
	}
	if code := errorCode(err); code != ErrInternal {
		return code
	}
	if renameOpts.inputFile != "" {
		return ErrFileReadError
	}
	return ErrDirectoryFailed
}

func planErrorSuggestion(err error) string {
	if s := connectionSuggestion(err); s != "" {
		return s
	}
	var statusErr *directory.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == 401 {
		return "Check the access token"
	}
	if errors.Is(err, directory.ErrNoEntities) {
		return "Check the --search pattern; it is matched against entity IDs"
	}
	return ""
}

func channelSuggestion(err error) string {
	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		return "Check the access token"
	}
	return "Rows after the failure were not sent; see 'hren history show'"
}

func printPlan(p *plan.Plan) {
	if p.LabelRuleActive() {
		for _, line := range ui.LabelDiagnostics(p.Rules.Label.Rule().String(), p.LabelSamples(labelSampleSize)) {
			fmt.Println(line)
		}
		fmt.Println()
	}
	fmt.Println(ui.PlanTable(p, p.Source == plan.SourceDirectory))
	fmt.Println()
	fmt.Println(ui.Hint(ui.Count(p.Len(), "entity", "entities")))
}

// confirmApply asks before anything is sent. --yes skips the prompt;
// without a terminal the answer is no.
func confirmApply(p *plan.Plan) bool {
	if renameOpts.yes {
		return true
	}
	if !shouldPromptForConfirm() {
		return false
	}
	return promptForConfirm(fmt.Sprintf("Apply %d %s?", p.Len(), ui.Pluralize("rename", p.Len())))
}

// openHistory opens the run ledger. Failures only warn; renames still run.
func openHistory(conf *config.Config, warn func(code, message string)) *history.Store {
	if !conf.HistoryEnabled() {
		return nil
	}
	path := conf.HistoryPath()
	if path == "" {
		return nil
	}
	store, err := history.Open(path)
	if err != nil {
		logger.Warn("failed to open history", "path", path, "error", err)
		warn(WarnHistoryFailed, fmt.Sprintf("History is unavailable: %v", err))
		return nil
	}
	return store
}

func addRenameFlags(f *pflag.FlagSet, opts *renameOptions) {
	f.StringVarP(&opts.search, "search", "s", "", "Regular expression matched against entity IDs")
	f.StringVarP(&opts.replace, "replace", "r", "", "Replacement for the matched part of entity IDs")
	f.StringVar(&opts.nameSearch, "name-search", "", "Regular expression matched against friendly names")
	f.StringVar(&opts.nameReplace, "name-replace", "", "Replacement for the matched part of friendly names")
	f.BoolVar(&opts.idFromLabel, "id-from-label", false, "Derive new entity IDs from the (new) friendly names")
	f.StringVarP(&opts.inputFile, "input-file", "i", "", "Read renames from a mapping file (.csv, .yaml, .json)")
	f.StringVarP(&opts.outputFile, "output-file", "o", "", "Write the planned mapping to a file")
	f.BoolVarP(&opts.yes, "yes", "y", false, "Apply without asking for confirmation")
	f.BoolVar(&opts.report, "report", false, "Print a markdown report after applying")
}

func init() {
	addRenameFlags(renameCmd.Flags(), &renameOpts)
	rootCmd.AddCommand(renameCmd)
}
