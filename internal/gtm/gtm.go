// Package gtm extracts Google Tag Manager and Analytics container IDs
// from the captured DOMs of a past run. Masquerade kits frequently
// reuse a tracking container across campaigns, so a shared ID links
// otherwise unrelated scans.
package gtm

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/MalasadaTech/masq-monitor/internal/logger"
)

const (
	// CacheSubdir holds fetched DOMs inside a run directory so repeat
	// extractions skip the network.
	CacheSubdir = "dom_cache"
	// OutputFile is the extraction result written into the run directory.
	OutputFile = "gtm_ids.csv"
)

// idPattern matches GTM container, GA4 measurement, and legacy UA
// property IDs. GTM- is listed before G- so container IDs never match
// as truncated measurement IDs.
var idPattern = regexp.MustCompile(`\b(GTM-[A-Z0-9]{4,}|G-[A-Z0-9]{4,}|UA-\d{4,}-\d{1,3})\b`)

// DOMFetcher retrieves a scan's captured DOM; satisfied by the urlscan
// client.
type DOMFetcher interface {
	FetchDOM(ctx context.Context, scanID string) ([]byte, error)
}

// Finding ties one extracted ID to the scan whose DOM carried it.
type Finding struct {
	ScanID string
	ID     string
}

// ExtractIDs pulls tracking IDs out of one DOM. It inspects script and
// iframe sources, noscript fallbacks, and inline script text, and
// returns distinct IDs in first-seen order. A DOM goquery cannot parse
// falls back to a flat regex scan of the raw bytes.
func ExtractIDs(dom []byte) []string {
	var candidates []string

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(dom))
	if err != nil {
		return dedupe(idPattern.FindAllString(string(dom), -1))
	}

	doc.Find("script[src], iframe[src]").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			candidates = append(candidates, idPattern.FindAllString(src, -1)...)
		}
	})
	doc.Find("script, noscript").Each(func(_ int, sel *goquery.Selection) {
		candidates = append(candidates, idPattern.FindAllString(sel.Text(), -1)...)
	})

	return dedupe(candidates)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ProcessRunDir extracts tracking IDs for every scan recorded in a past
// run's IOC exports. DOMs are cached under the run directory; a scan
// whose DOM cannot be fetched is logged and skipped so one dead scan
// does not abort the sweep. Findings are also written to OutputFile in
// the run directory.
func ProcessRunDir(ctx context.Context, dir string, fetcher DOMFetcher, log logger.Interface) ([]Finding, error) {
	if log == nil {
		log = logger.NewNoOp()
	}
	log = log.WithComponent("gtm")

	scanIDs, err := readScanIDs(dir)
	if err != nil {
		return nil, err
	}
	if len(scanIDs) == 0 {
		return nil, fmt.Errorf("no scan IDs found under %s", filepath.Join(dir, "iocs"))
	}

	var findings []Finding
	for _, scanID := range scanIDs {
		dom, fetchErr := cachedDOM(ctx, dir, scanID, fetcher)
		if fetchErr != nil {
			log.Warn("DOM fetch failed", "scan_id", scanID, "error", fetchErr)
			continue
		}
		for _, id := range ExtractIDs(dom) {
			findings = append(findings, Finding{ScanID: scanID, ID: id})
		}
	}

	if err := writeFindings(dir, findings); err != nil {
		return nil, err
	}
	return findings, nil
}

// readScanIDs collects distinct scan IDs from every scan_ids.csv export
// in the run directory, in file then row order.
func readScanIDs(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "iocs", "*scan_ids.csv"))
	if err != nil {
		return nil, err
	}

	var ids []string
	seen := make(map[string]bool)
	for _, path := range paths {
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), openErr)
		}

		reader := csv.NewReader(f)
		for {
			row, readErr := reader.Read()
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				f.Close()
				return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), readErr)
			}
			if len(row) == 0 {
				continue
			}
			id := strings.TrimSpace(row[0])
			if id == "" || id == "scan_id" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
		f.Close()
	}
	return ids, nil
}

func cachedDOM(ctx context.Context, dir, scanID string, fetcher DOMFetcher) ([]byte, error) {
	cachePath := filepath.Join(dir, CacheSubdir, scanID+".html")
	if dom, err := os.ReadFile(cachePath); err == nil {
		return dom, nil
	}

	dom, err := fetcher.FetchDOM(ctx, scanID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(dir, CacheSubdir), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(cachePath, dom, 0o644); err != nil {
		return nil, err
	}
	return dom, nil
}

func writeFindings(dir string, findings []Finding) error {
	f, err := os.OpenFile(filepath.Join(dir, OutputFile), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", OutputFile, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"scan_id", "gtm_id"}); err != nil {
		return fmt.Errorf("writing %s: %w", OutputFile, err)
	}
	for _, finding := range findings {
		if err := w.Write([]string{finding.ScanID, finding.ID}); err != nil {
			return fmt.Errorf("writing %s: %w", OutputFile, err)
		}
	}
	w.Flush()
	return w.Error()
}
