// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperharvest/internal/acquire"
	"github.com/pdiddy/paperharvest/internal/httputil"
	"github.com/pdiddy/paperharvest/internal/secrets"
	"github.com/pdiddy/paperharvest/internal/store"
	"github.com/pdiddy/paperharvest/pkg/types"
)

const (
	defaultOutputDir = "papers"
	defaultDelay     = time.Second
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download PDFs for a stored harvest",
	Long: `Download fetches the full-text PDF of every paper in a harvest stored by
the search command. Papers without a known PDF URL are resolved through
publisher landing pages and, failing that, OpenAlex open-access records.
Outcomes are appended to download.log in the output directory.`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().String("database-file", "", "SQLite file with harvest results (default paperharvest.db)")
	downloadCmd.Flags().Int64("harvest", 0, "harvest id to download (default: latest)")
	downloadCmd.Flags().StringP("output-dir", "o", "", "directory for downloaded PDFs (default papers)")
	downloadCmd.Flags().Duration("delay", 0, "pause between downloads (default 1s)")
	downloadCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")
	downloadCmd.Flags().String("proxy", "", "proxy URL for all HTTP requests")

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, dbFile, err := downloadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := store.Open(dbFile)
	if err != nil {
		return err
	}
	defer st.Close()

	harvestID, _ := cmd.Flags().GetInt64("harvest")
	if harvestID == 0 {
		harvestID, err = st.LatestHarvestID(cmd.Context())
		if err != nil {
			return err
		}
	}

	records, err := st.Papers(cmd.Context(), harvestID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("harvest %d has no papers", harvestID)
	}
	logger.Info().Int64("harvest", harvestID).Int("papers", len(records)).Msg("downloading")

	fetcher, err := httputil.NewFetcher(cfg.HTTPConfig, logger)
	if err != nil {
		return err
	}

	papers := make([]*types.Paper, len(records))
	for i, rec := range records {
		papers[i] = rec.Paper
	}

	downloader := acquire.NewDownloader(fetcher, cfg, logger)
	result, err := downloader.DownloadAll(cmd.Context(), papers)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if rec.Paper.FilePath == "" {
			continue
		}
		if err := st.SetPDF(cmd.Context(), rec.ID, rec.Paper.PDFURL, rec.Paper.FilePath); err != nil {
			return err
		}
	}

	fmt.Printf("Downloaded %d, skipped %d, failed %d of %d papers\n",
		result.Downloaded, result.Skipped, result.Failed, result.Total())
	if result.HasFailures() {
		return fmt.Errorf("%d papers failed to download, see %s/download.log", result.Failed, cfg.OutputDir)
	}
	return nil
}

func downloadConfig(cmd *cobra.Command) (types.DownloadConfig, string, error) {
	var cfg types.DownloadConfig
	if err := viper.UnmarshalKey("download", &cfg); err != nil {
		return cfg, "", fmt.Errorf("reading download config: %w", err)
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
	cfg.OpenAlexMailto = loadedSecrets.Or(secrets.KeyOpenAlexEmail, cfg.OpenAlexMailto)

	if outDir, _ := cmd.Flags().GetString("output-dir"); outDir != "" {
		cfg.OutputDir = outDir
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaultOutputDir
	}

	if delay, _ := cmd.Flags().GetDuration("delay"); delay > 0 {
		cfg.Delay = delay
	}
	if cfg.Delay == 0 {
		cfg.Delay = defaultDelay
	}

	dbFile, _ := cmd.Flags().GetString("database-file")
	if dbFile == "" {
		dbFile = viper.GetString("harvest.database_file")
	}
	if dbFile == "" {
		dbFile = defaultDBFile
	}

	return cfg, dbFile, nil
}
