package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dashguard/internal/config"
	"dashguard/internal/domain/models"
	"dashguard/internal/domain/services"
	"dashguard/internal/infrastructure/geoip"
	"dashguard/internal/sources"
	"dashguard/pkg/logger"
)

const loadTimeout = 2 * time.Minute

// options holds the flags shared by every subcommand
type options struct {
	configFile string
	loader     string
	path       string
	outputJSON bool
	verbose    bool

	severity []string
	types    []string
	source   []string
	search   string
	from     string
	to       string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect a threat feed offline",
		Long: `Load a threat feed once, apply filter criteria and print either the
statistics snapshot or the matching threats.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "path to config file")
	flags.StringVar(&opts.loader, "loader", "", "feed loader (mock, file); overrides config")
	flags.StringVar(&opts.path, "path", "", "feed file for the file loader; overrides config")
	flags.BoolVar(&opts.outputJSON, "json", false, "print JSON instead of a table")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log feed loading")
	flags.StringSliceVar(&opts.severity, "severity", nil, "keep only these severities")
	flags.StringSliceVar(&opts.types, "type", nil, "keep only these threat types")
	flags.StringSliceVar(&opts.source, "source", nil, "keep only these sources")
	flags.StringVar(&opts.search, "search", "", "case-insensitive search query")
	flags.StringVar(&opts.from, "from", "", "earliest date added (YYYY-MM-DD)")
	flags.StringVar(&opts.to, "to", "", "latest date added (YYYY-MM-DD)")

	root.AddCommand(newStatsCmd(opts), newListCmd(opts))
	return root
}

func newStatsCmd(opts *options) *cobra.Command {
	var (
		top     int
		sources int
		days    int
		rng     string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the statistics snapshot of the filtered feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := models.TimeRange(rng)
			switch r {
			case "", models.TimeRange24Hours, models.TimeRange7Days, models.TimeRange30Days, models.TimeRange90Days:
			default:
				return fmt.Errorf("unknown range %q", rng)
			}
			if days > services.MaxDailyWindow {
				return fmt.Errorf("--days must be at most %d", services.MaxDailyWindow)
			}

			visible, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}

			aggOpts := services.AggregateOptions{TopCountries: top, TopSources: sources, DailyWindow: days}
			if r != "" {
				visible = services.WithinRange(visible, r, time.Now())
				aggOpts.DailyWindow = r.Days()
			}
			snap := services.Aggregate(visible, aggOpts)

			if opts.outputJSON {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			return writeStats(cmd.OutOrStdout(), snap)
		},
	}

	cmd.Flags().IntVar(&top, "top", services.SummaryTopCountries, "countries to rank")
	cmd.Flags().IntVar(&sources, "sources", 0, "sources to rank, 0 for all")
	cmd.Flags().IntVar(&days, "days", services.DefaultDailyWindow, "days in the daily series")
	cmd.Flags().StringVar(&rng, "range", "", "restrict to 24hours, 7days, 30days or 90days")
	return cmd
}

func newListCmd(opts *options) *cobra.Command {
	var (
		sortKey string
		dir     string
		limit   int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Print the filtered threats",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := services.ParseSortKey(sortKey)
			if !ok {
				return fmt.Errorf("unknown sort key %q", sortKey)
			}

			visible, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}

			sorted := services.SortBy(visible, key, services.ParseSortDirection(dir))
			if limit > 0 && len(sorted) > limit {
				sorted = sorted[:limit]
			}

			if opts.outputJSON {
				return writeJSON(cmd.OutOrStdout(), sorted)
			}
			return writeThreats(cmd.OutOrStdout(), sorted)
		},
	}

	cmd.Flags().StringVar(&sortKey, "sort", string(services.SortByDateAdded), "sort key")
	cmd.Flags().StringVar(&dir, "dir", string(services.SortDesc), "sort direction (asc, desc)")
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most this many threats")
	return cmd
}

// load reads the feed through the configured loader and returns the threats
// that pass the criteria flags
func (o *options) load(ctx context.Context) ([]models.Threat, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.loader != "" {
		cfg.Feed.Loader = o.loader
	}
	if o.path != "" {
		cfg.Feed.Path = o.path
	}

	log := logger.NewNop()
	if o.verbose {
		log = logger.New(logger.Config{Level: "debug", Format: "console", TimeFormat: time.Kitchen})
	}

	patch, err := o.criteria()
	if err != nil {
		return nil, err
	}

	loader, err := sources.NewDefaultRegistry(cfg.Feed.Config, log).Get(cfg.Feed.Loader)
	if err != nil {
		return nil, err
	}
	enricher, err := geoip.Open(cfg.Feed.GeoIPDatabase, log)
	if err != nil {
		return nil, err
	}
	defer enricher.Close()

	raws, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", loader.Slug(), err)
	}
	threats, rejected := services.NewNormalizer(log).NormalizeBatch(raws)
	enricher.EnrichAll(threats)
	log.Info().Int("accepted", len(threats)).Int("rejected", len(rejected)).Msg("feed loaded")

	engine := services.NewFilterEngine(log)
	engine.Load(threats)
	engine.UpdateCriteria(patch)
	return engine.VisibleSet(), nil
}

// criteria turns the filter flags into a patch over the default criteria
func (o *options) criteria() (models.CriteriaPatch, error) {
	var patch models.CriteriaPatch
	for _, s := range o.severity {
		patch.Severity = append(patch.Severity, models.Severity(strings.ToLower(s)))
	}
	for _, t := range o.types {
		patch.Type = append(patch.Type, models.ThreatType(strings.ToLower(t)))
	}
	if len(o.source) > 0 {
		patch.Source = o.source
	}
	if o.search != "" {
		patch.SearchQuery = &o.search
	}

	if o.from != "" || o.to != "" {
		dr := &models.DateRangePatch{}
		if o.from != "" {
			t, err := time.Parse("2006-01-02", o.from)
			if err != nil {
				return patch, fmt.Errorf("invalid --from: %w", err)
			}
			dr.From = models.SetBound(t)
		}
		if o.to != "" {
			t, err := time.Parse("2006-01-02", o.to)
			if err != nil {
				return patch, fmt.Errorf("invalid --to: %w", err)
			}
			dr.To = models.SetBound(t.Add(24*time.Hour - time.Nanosecond))
		}
		patch.DateRange = dr
	}
	return patch, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStats(w io.Writer, s models.StatsSnapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Total\t%d\n", s.Total)
	fmt.Fprintf(tw, "Active\t%d\n", s.ActiveCount)
	fmt.Fprintf(tw, "Inactive\t%d\n", s.InactiveCount)
	fmt.Fprintf(tw, "Countries\t%d\n", s.UniqueCountries)
	fmt.Fprintf(tw, "Avg confidence\t%d\n", s.AverageConfidence)

	fmt.Fprintln(tw, "\nSEVERITY\tCOUNT")
	for _, sev := range []models.Severity{models.SeverityHigh, models.SeverityMedium, models.SeverityLow, models.SeverityInfo} {
		fmt.Fprintf(tw, "%s\t%d\n", sev, s.CountBySeverity[sev])
	}

	fmt.Fprintln(tw, "\nCOUNTRY\tCOUNT")
	for _, c := range s.TopCountries {
		fmt.Fprintf(tw, "%s\t%d\n", c.Category, c.Count)
	}

	fmt.Fprintln(tw, "\nSOURCE\tCOUNT")
	for _, c := range s.BySource {
		fmt.Fprintf(tw, "%s\t%d\n", c.Category, c.Count)
	}

	fmt.Fprintln(tw, "\nDATE\tCOUNT")
	for _, d := range s.DailyCounts {
		fmt.Fprintf(tw, "%s\t%d\n", d.Date, d.Count)
	}
	return tw.Flush()
}

func writeThreats(w io.Writer, threats []models.Threat) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSEVERITY\tTYPE\tINDICATOR\tSOURCE\tCOUNTRY\tADDED")
	for i := range threats {
		t := &threats[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Severity, t.Type, t.Indicator, t.Source, t.Country(), t.DateAdded.Format("2006-01-02"))
	}
	return tw.Flush()
}
