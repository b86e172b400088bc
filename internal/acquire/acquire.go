// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire resolves and downloads paper PDFs and writes
// per-paper metadata records. Download outcomes are appended to a
// download.log file in the output directory so failed papers can be
// fetched manually later.
package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paperharvest/internal/httputil"
	"github.com/pdiddy/paperharvest/pkg/types"
)

const (
	metadataDir = "metadata"
	logFilename = "download.log"
)

// Result holds the outcome of a batch download run.
type Result struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// Total returns the number of papers processed.
func (r Result) Total() int {
	return r.Downloaded + r.Skipped + r.Failed
}

// HasFailures reports whether any paper failed to download.
func (r Result) HasFailures() bool {
	return r.Failed > 0
}

var filenameSanitizer = regexp.MustCompile(`[^\w\d-]`)

// FileBasename derives the output file base name for a paper from its
// publication year and title.
func FileBasename(p *types.Paper) string {
	name := fmt.Sprintf("%d-%s", p.PublicationDate.Year(), p.Title)
	return filenameSanitizer.ReplaceAllString(name, "_")
}

// Downloader fetches paper PDFs into an output directory.
type Downloader struct {
	fetcher *httputil.Fetcher
	locator *Locator
	cfg     types.DownloadConfig
	log     zerolog.Logger
}

// NewDownloader builds a Downloader. PDF URLs missing from the papers
// are resolved through the publisher rule table on demand.
func NewDownloader(fetcher *httputil.Fetcher, cfg types.DownloadConfig, log zerolog.Logger) *Downloader {
	return &Downloader{
		fetcher: fetcher,
		locator: NewLocator(fetcher, log),
		cfg:     cfg,
		log:     log,
	}
}

// DownloadAll downloads every paper's PDF, skipping files already on
// disk and continuing after individual failures. Each downloaded paper
// gets its FilePath set and a YAML metadata record written next to the
// PDFs.
func (d *Downloader) DownloadAll(ctx context.Context, papers []*types.Paper) (Result, error) {
	var result Result

	for _, dir := range []string{d.cfg.OutputDir, filepath.Join(d.cfg.OutputDir, metadataDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return result, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	logFile, err := os.OpenFile(filepath.Join(d.cfg.OutputDir, logFilename),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return result, fmt.Errorf("opening download log: %w", err)
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "------- A new download process started at: %s\n",
		time.Now().Format("2006-01-02 15:04:05"))

	for i, paper := range papers {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if i > 0 && d.cfg.Delay > 0 {
			time.Sleep(d.cfg.Delay)
		}

		d.log.Info().Msgf("(%d/%d) %s", i+1, len(papers), paper.Title)

		skipped, err := d.downloadPaper(ctx, paper)
		switch {
		case err != nil:
			result.Failed++
			d.log.Warn().Err(err).Str("title", paper.Title).Msg("download failed")
			fmt.Fprintf(logFile, "[FAILED] %s\n", paper.Title)
			if len(paper.URLs) == 0 {
				fmt.Fprintln(logFile, "Empty URL list")
			} else {
				for _, u := range paper.URLs {
					fmt.Fprintln(logFile, u)
				}
			}
		case skipped:
			result.Skipped++
			fmt.Fprintf(logFile, "[DOWNLOADED] %s\n", paper.Title)
		default:
			result.Downloaded++
			fmt.Fprintf(logFile, "[DOWNLOADED] %s\n", paper.Title)
		}
	}

	d.log.Info().
		Int("downloaded", result.Downloaded).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("download run finished")
	return result, nil
}

// downloadPaper fetches one paper's PDF. The skipped return reports
// that the file was already on disk.
func (d *Downloader) downloadPaper(ctx context.Context, paper *types.Paper) (skipped bool, err error) {
	destPath := filepath.Join(d.cfg.OutputDir, FileBasename(paper)+".pdf")

	if _, statErr := os.Stat(destPath); statErr == nil {
		d.log.Debug().Str("path", destPath).Msg("PDF already collected")
		paper.FilePath = destPath
		return true, nil
	}

	if paper.PDFURL == "" {
		paper.PDFURL = d.locator.Locate(ctx, paper.URLs, paper.DOI)
	}
	// Publisher rules exhausted; OpenAlex may still know an
	// open-access copy.
	if paper.PDFURL == "" && paper.DOI != "" {
		oaURL, err := resolveOpenAlex(ctx, d.fetcher, paper.DOI, d.cfg.OpenAlexMailto)
		if err != nil {
			d.log.Debug().Err(err).Str("doi", paper.DOI).Msg("OpenAlex lookup failed")
		} else {
			paper.PDFURL = oaURL
		}
	}
	if paper.PDFURL == "" {
		return false, fmt.Errorf("no PDF URL could be resolved")
	}

	if err := d.downloadFile(ctx, paper.PDFURL, destPath); err != nil {
		return false, err
	}
	paper.FilePath = destPath

	if err := d.writeMetadata(paper); err != nil {
		return false, fmt.Errorf("writing metadata: %w", err)
	}
	return false, nil
}

// downloadFile streams url to destPath through a temporary file,
// renaming on success so a partial download never shows up under the
// final name.
func (d *Downloader) downloadFile(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := d.fetcher.Client().Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); !strings.Contains(ct, "application/pdf") {
		return fmt.Errorf("unexpected content type %q from %s", ct, rawURL)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".download-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func (d *Downloader) writeMetadata(paper *types.Paper) error {
	data, err := yaml.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	path := filepath.Join(d.cfg.OutputDir, metadataDir, FileBasename(paper)+".yaml")
	return os.WriteFile(path, data, 0o644)
}
