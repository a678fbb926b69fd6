package iocs

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Subdir is the run-directory subfolder holding IOC artifacts.
const Subdir = "iocs"

const exportFileMode = 0o644

// Export writes the run's IOC artifacts under dir/iocs: one CSV per
// indicator type present, a combined CSV across types, a JSON export,
// and a scan-ID list consumed by follow-on DOM analysis. Name and ts
// are embedded in every filename so artifacts from different runs can
// share a directory tree without colliding. An empty IOC list writes
// nothing and returns nil.
func Export(dir, name, ts string, iocList []IOC) error {
	if len(iocList) == 0 {
		return nil
	}

	exportDir := filepath.Join(dir, Subdir)
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return fmt.Errorf("creating IOC directory: %w", err)
	}

	byType := make(map[Type][]IOC)
	for _, ioc := range iocList {
		byType[ioc.Type] = append(byType[ioc.Type], ioc)
	}

	for _, t := range Types {
		group := byType[t]
		if len(group) == 0 {
			continue
		}
		path := filepath.Join(exportDir, fmt.Sprintf("%s_%s_%ss.csv", name, ts, t))
		if err := writeCSV(path, group); err != nil {
			return err
		}
	}

	allPath := filepath.Join(exportDir, fmt.Sprintf("%s_%s_all.csv", name, ts))
	if err := writeCSV(allPath, iocList); err != nil {
		return err
	}

	jsonPath := filepath.Join(exportDir, fmt.Sprintf("%s_%s_iocs.json", name, ts))
	if err := writeJSON(jsonPath, iocList); err != nil {
		return err
	}

	scanIDPath := filepath.Join(exportDir, fmt.Sprintf("%s_%s_scan_ids.csv", name, ts))
	return writeScanIDs(scanIDPath, iocList)
}

func writeCSV(path string, iocList []IOC) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, exportFileMode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"type", "value", "source_scan_id"}); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	for _, ioc := range iocList {
		if err := w.Write([]string{string(ioc.Type), ioc.Value, ioc.ScanID}); err != nil {
			return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(path string, iocList []IOC) error {
	data, err := json.MarshalIndent(iocList, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), exportFileMode); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeScanIDs records each distinct scan ID once, in first-seen order.
func writeScanIDs(path string, iocList []IOC) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, exportFileMode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"scan_id"}); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	seen := make(map[string]bool)
	for _, ioc := range iocList {
		if ioc.ScanID == "" || seen[ioc.ScanID] {
			continue
		}
		seen[ioc.ScanID] = true
		if err := w.Write([]string{ioc.ScanID}); err != nil {
			return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
		}
	}
	w.Flush()
	return w.Error()
}
