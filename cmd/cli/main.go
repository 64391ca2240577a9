package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/sponsor-access-sync/internal/aggregator"
	"github.com/kurihiro0119/sponsor-access-sync/internal/collector"
	"github.com/kurihiro0119/sponsor-access-sync/internal/config"
	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
	apperrors "github.com/kurihiro0119/sponsor-access-sync/internal/errors"
	"github.com/kurihiro0119/sponsor-access-sync/internal/logging"
	"github.com/kurihiro0119/sponsor-access-sync/internal/pipeline"
	"github.com/kurihiro0119/sponsor-access-sync/internal/reconciler"
	"github.com/kurihiro0119/sponsor-access-sync/internal/reporter"
	"github.com/kurihiro0119/sponsor-access-sync/internal/storage"
	"github.com/kurihiro0119/sponsor-access-sync/internal/storage/postgres"
	"github.com/kurihiro0119/sponsor-access-sync/internal/storage/sqlite"
	"github.com/kurihiro0119/sponsor-access-sync/pkg/client"
)

var (
	policyFile string
	outputJSON bool
	dryRun     bool
	strict     bool
	remote     bool
	runLimit   int
)

var rootCmd = &cobra.Command{
	Use:   "sponsor-sync",
	Short: "Sponsor-gated team access tool",
	Long: `A CLI tool that grants and revokes GitHub team membership based on GitHub Sponsors.

Recurring sponsors at or above the configured monthly amount, privileged users and
the members of sponsoring organizations are added to the configured teams; everyone
else is removed. Aggregate numbers and a public sponsor roster are written as JSON.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile team membership with sponsorships",
	Long:  `Fetch sponsors, compute eligibility, grant and revoke team membership, then write reports.`,
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the grants and revokes a sync would make",
	Long:  `Compute the membership delta for every team without changing anything.`,
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

var sponsorsCmd = &cobra.Command{
	Use:   "sponsors",
	Short: "List current recurring sponsors",
	Args:  cobra.NoArgs,
	RunE:  runSponsors,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent sync runs",
	Long:  `Display the run history from local storage, or from the report API with --remote.`,
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policyFile, "policy", "", "access policy file (default is $POLICY_FILE or ./policy.yaml)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan only; do not change membership or write reports")
	syncCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any grant or revoke fails")
	runsCmd.Flags().BoolVar(&remote, "remote", false, "read runs from the report API at $API_ENDPOINT")
	runsCmd.Flags().IntVar(&runLimit, "limit", aggregator.DefaultRunLimit, "number of runs to show")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(sponsorsCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "none":
		return nil, nil
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

type app struct {
	cfg       *config.Config
	policy    *config.Policy
	logger    *slog.Logger
	collector collector.Collector
}

// setup loads configuration and builds the GitHub collector
func setup(needPolicy bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	if needPolicy {
		path := policyFile
		if path == "" {
			path = cfg.PolicyFile
		}
		a.policy, err = config.LoadPolicy(path)
		if err != nil {
			return nil, fmt.Errorf("invalid policy: %w", err)
		}
	}

	a.collector, err = collector.NewGitHubCollector(cfg.GitHubToken,
		collector.WithBaseURL(cfg.GitHubAPIURL),
		collector.WithPageSize(cfg.PageSize),
		collector.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	return a, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := setup(true)
	if err != nil {
		return err
	}

	store, err := getStorage(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	ctx, cancel := signalContext()
	defer cancel()

	p := pipeline.New(
		a.collector,
		reconciler.New(a.collector, a.logger),
		a.policy,
		reporter.New(a.cfg.OutputDir, a.logger),
		store,
		a.logger,
	)

	if dryRun {
		fmt.Println("Dry run: no membership changes will be made")
	}
	fmt.Printf("Syncing %d team(s)...\n", len(a.policy.Targets))

	result, err := p.Run(ctx, dryRun)
	if err != nil {
		return syncError(err)
	}

	if outputJSON {
		if err := printJSON(result.Run); err != nil {
			return err
		}
	} else {
		printRunSummary(result)
	}

	if strict && result.Run.Failed() > 0 {
		return fmt.Errorf("%d membership change(s) failed", result.Run.Failed())
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := setup(true)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	p := pipeline.New(a.collector, reconciler.New(a.collector, a.logger), a.policy, nil, nil, a.logger)
	result, err := p.Run(ctx, true)
	if err != nil {
		return err
	}

	if outputJSON {
		type planJSON struct {
			Org      string   `json:"org"`
			Team     string   `json:"team"`
			ToGrant  []string `json:"to_grant"`
			ToRevoke []string `json:"to_revoke"`
		}
		plans := make([]planJSON, len(result.Targets))
		for i, t := range result.Targets {
			plans[i] = planJSON{Org: t.Target.Org, Team: t.Target.Team, ToGrant: t.Plan.ToGrant, ToRevoke: t.Plan.ToRevoke}
		}
		return printJSON(plans)
	}

	fmt.Printf("\nEligible users: %d\n\n", len(result.Eligible))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Team", "Action", "User"})
	for _, t := range result.Targets {
		for _, h := range t.Plan.ToRevoke {
			table.Append([]string{t.Target.String(), "revoke", h})
		}
		for _, h := range t.Plan.ToGrant {
			table.Append([]string{t.Target.String(), "grant", h})
		}
		if t.Plan.Empty() {
			table.Append([]string{t.Target.String(), "-", "up to date"})
		}
	}
	table.Render()

	return nil
}

func runSponsors(cmd *cobra.Command, args []string) error {
	a, err := setup(false)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	sponsors, err := a.collector.GetSponsors(ctx)
	if err != nil {
		return fmt.Errorf("failed to get sponsors: %w", err)
	}
	numbers := aggregator.Summarize(sponsors)

	if outputJSON {
		return printJSON(struct {
			Numbers  domain.Numbers   `json:"numbers"`
			Sponsors []domain.Account `json:"sponsors"`
		}{numbers, aggregator.PublicRoster(sponsors)})
	}

	fmt.Printf("\nSponsors: %d, total $%d/month\n\n", numbers.Count, numbers.Total)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Sponsor", "Type", "Monthly", "Private", "Since"})
	for _, s := range sponsors {
		kind := "user"
		if s.Account.IsOrganization {
			kind = "org"
		}
		table.Append([]string{
			s.Account.Name,
			kind,
			"$" + strconv.Itoa(s.MonthlyAmount),
			strconv.FormatBool(s.IsPrivate),
			s.CreatedAt.Format("2006-01-02"),
		})
	}
	table.Render()

	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var runs []*domain.Run
	if remote {
		runs, err = client.NewClient(cfg.APIEndpoint).ListRuns(runLimit)
		if err != nil {
			return fmt.Errorf("failed to get runs: %w", err)
		}
	} else {
		if err := cfg.ValidateStorage(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		store, err := getStorage(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		if store == nil {
			return fmt.Errorf("run history is disabled (STORAGE_TYPE=none)")
		}
		defer store.Close()

		runs, err = aggregator.NewAggregator(store).ListRuns(context.Background(), runLimit)
		if err != nil {
			return fmt.Errorf("failed to get runs: %w", err)
		}
	}

	if outputJSON {
		return printJSON(runs)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Run", "Started", "Mode", "Sponsors", "Total", "Eligible", "Teams"})
	for _, r := range runs {
		mode := "apply"
		if r.DryRun {
			mode = "dry-run"
		}
		teams := make([]string, len(r.Targets))
		for i, t := range r.Targets {
			teams[i] = fmt.Sprintf("%s/%s +%d -%d !%d", t.Org, t.Team, t.Granted, t.Revoked, t.Failed)
		}
		table.Append([]string{
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			mode,
			strconv.Itoa(r.Numbers.Count),
			"$" + strconv.Itoa(r.Numbers.Total),
			strconv.Itoa(r.Eligible),
			strings.Join(teams, "\n"),
		})
	}
	table.Render()

	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printRunSummary(result *pipeline.Result) {
	fmt.Printf("\nSponsors: %d, total $%d/month, eligible users: %d\n\n",
		result.Run.Numbers.Count, result.Run.Numbers.Total, result.Run.Eligible)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Team", "Planned", "Granted", "Revoked", "Failed"})
	for _, t := range result.Run.Targets {
		table.Append([]string{
			t.Org + "/" + t.Team,
			strconv.Itoa(t.Planned),
			strconv.Itoa(t.Granted),
			strconv.Itoa(t.Revoked),
			strconv.Itoa(t.Failed),
		})
	}
	table.Render()

	for _, t := range result.Targets {
		for _, f := range t.Failures() {
			fmt.Printf("Warning: %s\n", failureMessage(t.Target, f))
		}
	}
}

// syncError explains an aborted sync. Fetch failures stop the run before any
// report is written.
func syncError(err error) error {
	switch {
	case apperrors.IsRateLimited(err):
		return fmt.Errorf("GitHub rate limit exhausted, retry after the reset; no reports were written: %w", err)
	case apperrors.IsTransport(err):
		return fmt.Errorf("sync aborted while reading from GitHub; no reports were written: %w", err)
	default:
		return err
	}
}

// failureMessage describes a failed grant or revoke. MutationError already
// names the user and team.
func failureMessage(target domain.GroupTarget, f domain.OperationResult) string {
	if apperrors.IsMutation(f.Err) {
		return f.Err.Error()
	}
	return fmt.Sprintf("%s @%s on %s: %v", f.Action, f.Handle, target, f.Err)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
