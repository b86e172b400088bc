// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperharvest/internal/collect"
	"github.com/pdiddy/paperharvest/internal/harvest"
	"github.com/pdiddy/paperharvest/internal/httputil"
	"github.com/pdiddy/paperharvest/internal/secrets"
	"github.com/pdiddy/paperharvest/internal/store"
	"github.com/pdiddy/paperharvest/pkg/types"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "paperharvest/0.1"
	defaultDBFile    = "paperharvest.db"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Harvest papers from bibliographic databases",
	Long: `Search queries the configured databases (PubMed, medRxiv, bioRxiv) with a
boolean term query, e.g.:

  paperharvest search --query "[heart attack] AND ([stroke] OR [aneurysm])"

Every query term must be enclosed in square brackets; terms combine with
AND, OR and AND NOT, and parentheses group them. Results are merged across
databases and stored in a SQLite database for the download stage.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringP("query", "q", "", "boolean term query (required)")
	searchCmd.Flags().String("since", "", "publication date lower bound (YYYY-MM-DD)")
	searchCmd.Flags().String("until", "", "publication date upper bound (YYYY-MM-DD)")
	searchCmd.Flags().Int("limit", 0, "max papers to collect in total (0 = unlimited)")
	searchCmd.Flags().Int("limit-per-database", 0, "max papers to collect per database (0 = unlimited)")
	searchCmd.Flags().StringSlice("databases", nil, "databases to query (default: all)")
	searchCmd.Flags().StringSlice("publication-types", nil, "publication types to keep (e.g. journal)")
	searchCmd.Flags().String("database-file", "", "SQLite file for harvest results (default paperharvest.db)")
	searchCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")
	searchCmd.Flags().String("proxy", "", "proxy URL for all HTTP requests")
	searchCmd.Flags().String("ncbi-api-key", "", "NCBI E-utilities API key")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		return fmt.Errorf("provide a query with --query")
	}

	since, err := parseDateFlag(cmd, "since")
	if err != nil {
		return err
	}
	until, err := parseDateFlag(cmd, "until")
	if err != nil {
		return err
	}

	cfg, err := harvestConfig(cmd)
	if err != nil {
		return err
	}

	fetcher, err := httputil.NewFetcher(cfg.HTTPConfig, logger)
	if err != nil {
		return err
	}

	sources, err := selectSources(fetcher, cfg)
	if err != nil {
		return err
	}

	col := collect.New(cfg.Limit, cfg.LimitPerDatabase)
	req := harvest.Request{
		Query:            query,
		Since:            since,
		Until:            until,
		PublicationTypes: cfg.PublicationTypes,
	}

	if err := harvest.RunAll(cmd.Context(), req, col, sources, logger); err != nil {
		return err
	}

	papers := col.Papers()
	for db, n := range col.Counts() {
		logger.Info().Str("database", db).Int("papers", n).Msg("database done")
	}

	st, err := store.Open(cfg.DatabaseFile)
	if err != nil {
		return err
	}
	defer st.Close()

	harvestID, err := st.SaveHarvest(cmd.Context(), query, since, until, papers)
	if err != nil {
		return err
	}

	fmt.Printf("Harvest %d: collected %d papers into %s\n", harvestID, len(papers), cfg.DatabaseFile)
	return nil
}

// harvestConfig merges flags, config file values and secrets.
func harvestConfig(cmd *cobra.Command) (types.HarvestConfig, error) {
	var cfg types.HarvestConfig
	if err := viper.UnmarshalKey("harvest", &cfg); err != nil {
		return cfg, fmt.Errorf("reading harvest config: %w", err)
	}

	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		cfg.Timeout = timeout
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	if proxy, _ := cmd.Flags().GetString("proxy"); proxy != "" {
		cfg.ProxyURL = proxy
	}
	cfg.ProxyURL = loadedSecrets.Or(secrets.KeyProxyURL, cfg.ProxyURL)

	if key, _ := cmd.Flags().GetString("ncbi-api-key"); key != "" {
		cfg.NCBIAPIKey = key
	}
	cfg.NCBIAPIKey = loadedSecrets.Or(secrets.KeyNCBIAPIKey, cfg.NCBIAPIKey)

	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		cfg.Limit = limit
	}
	if limit, _ := cmd.Flags().GetInt("limit-per-database"); limit > 0 {
		cfg.LimitPerDatabase = limit
	}
	if dbs, _ := cmd.Flags().GetStringSlice("databases"); len(dbs) > 0 {
		cfg.Databases = dbs
	}
	if pts, _ := cmd.Flags().GetStringSlice("publication-types"); len(pts) > 0 {
		cfg.PublicationTypes = pts
	}

	if dbFile, _ := cmd.Flags().GetString("database-file"); dbFile != "" {
		cfg.DatabaseFile = dbFile
	}
	if cfg.DatabaseFile == "" {
		cfg.DatabaseFile = defaultDBFile
	}

	return cfg, nil
}

// selectSources builds the harvesting sources named in the config, or
// all of them when none are named.
func selectSources(fetcher *httputil.Fetcher, cfg types.HarvestConfig) ([]harvest.Source, error) {
	all := []harvest.Source{
		harvest.NewPubMed(fetcher, cfg.NCBIAPIKey, logger),
		harvest.NewMedRxiv(fetcher, logger),
		harvest.NewBioRxiv(fetcher, logger),
	}
	if len(cfg.Databases) == 0 {
		return all, nil
	}

	var selected []harvest.Source
	for _, name := range cfg.Databases {
		found := false
		for _, src := range all {
			if strings.EqualFold(src.Name(), name) {
				selected = append(selected, src)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown database %q (available: PubMed, medRxiv, bioRxiv)", name)
		}
	}
	return selected, nil
}

func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing --%s: expected YYYY-MM-DD, got %q", name, value)
	}
	return t, nil
}
