package iocs_test

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MalasadaTech/masq-monitor/internal/iocs"
	"github.com/MalasadaTech/masq-monitor/internal/platform"
	"github.com/MalasadaTech/masq-monitor/internal/results"
	"github.com/stretchr/testify/require"
)

func scanResult() results.Result {
	return results.Normalize(platform.URLScan, platform.DataTypeURLScan, platform.Raw{
		"page": map[string]any{
			"url":    "https://usaa-login.example.net/",
			"domain": "usaa-login.example.net",
			"ip":     "198.51.100.7",
			"title":  "USAA | Log On",
			"server": "nginx",
		},
		"task": map[string]any{"uuid": "scan-1"},
	}, "usaa-domain")
}

func whoisResult() results.Result {
	return results.Normalize(platform.SilentPush, platform.DataTypeWhois, platform.Raw{
		"domain":     "usaa-login.example.net",
		"registrar":  "Example Registrar LLC",
		"created":    "2025-05-01",
		"email":      []any{"owner@example.net", "abuse@example.net"},
		"nameserver": []any{"ns1.example.net"},
		"scan_id":    "whois-1",
	}, "usaa-whois")
}

func TestExtract_ScanRecord(t *testing.T) {
	t.Parallel()

	got := iocs.Extract([]results.Result{scanResult()})

	require.Equal(t, []iocs.IOC{
		{Type: iocs.TypeDomain, Value: "usaa-login.example.net", ScanID: "scan-1"},
		{Type: iocs.TypeIP, Value: "198.51.100.7", ScanID: "scan-1"},
		{Type: iocs.TypeURL, Value: "https://usaa-login.example.net/", ScanID: "scan-1"},
		{Type: iocs.TypeTitle, Value: "USAA | Log On", ScanID: "scan-1"},
		{Type: iocs.TypeServer, Value: "nginx", ScanID: "scan-1"},
	}, got)
}

func TestExtract_WhoisRecord(t *testing.T) {
	t.Parallel()

	got := iocs.Extract([]results.Result{whoisResult()})

	types := make(map[iocs.Type][]string)
	for _, ioc := range got {
		types[ioc.Type] = append(types[ioc.Type], ioc.Value)
	}

	require.Equal(t, []string{"usaa-login.example.net"}, types[iocs.TypeDomain])
	require.Equal(t, []string{"Example Registrar LLC"}, types[iocs.TypeRegistrar])
	require.Equal(t, []string{"owner@example.net", "abuse@example.net"}, types[iocs.TypeEmail])
	require.Equal(t, []string{"ns1.example.net"}, types[iocs.TypeNameserver])
}

func TestExtract_DomainSearchAndGeneric(t *testing.T) {
	t.Parallel()

	ds := results.Normalize(platform.SilentPush, platform.DataTypeDomainSearch, platform.Raw{
		"host":          "usaa-secure.example.org",
		"asn_diversity": float64(3),
	}, "usaa-domainsearch")
	generic := results.Normalize(platform.SilentPush, platform.DataTypeGeneric, platform.Raw{
		"whatever": "value",
	}, "usaa-generic")

	got := iocs.Extract([]results.Result{ds, generic})
	require.Equal(t, []iocs.IOC{
		{Type: iocs.TypeDomain, Value: "usaa-secure.example.org"},
	}, got)
}

func TestExtract_MissingFieldsSkipped(t *testing.T) {
	t.Parallel()

	sparse := results.Normalize(platform.URLScan, platform.DataTypeURLScan, platform.Raw{
		"page": map[string]any{"domain": "only.example.net"},
	}, "sparse")

	got := iocs.Extract([]results.Result{sparse})
	require.Len(t, got, 1)
	require.Equal(t, iocs.TypeDomain, got[0].Type)
}

func TestExport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	iocList := iocs.Extract([]results.Result{scanResult(), whoisResult()})
	require.NoError(t, iocs.Export(dir, "usaa-domain", "20250520_103000", iocList))

	exportDir := filepath.Join(dir, iocs.Subdir)

	// Per-type CSVs exist only for types present.
	require.FileExists(t, filepath.Join(exportDir, "usaa-domain_20250520_103000_domains.csv"))
	require.FileExists(t, filepath.Join(exportDir, "usaa-domain_20250520_103000_registrars.csv"))
	require.NoFileExists(t, filepath.Join(exportDir, "usaa-domain_20250520_103000_organizations.csv"))

	// Combined CSV carries every record plus the header.
	f, err := os.Open(filepath.Join(exportDir, "usaa-domain_20250520_103000_all.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(iocList)+1)
	require.Equal(t, []string{"type", "value", "source_scan_id"}, rows[0])

	// JSON export round-trips.
	data, err := os.ReadFile(filepath.Join(exportDir, "usaa-domain_20250520_103000_iocs.json"))
	require.NoError(t, err)
	var decoded []iocs.IOC
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, iocList, decoded)

	// Scan IDs are distinct, in first-seen order.
	sf, err := os.Open(filepath.Join(exportDir, "usaa-domain_20250520_103000_scan_ids.csv"))
	require.NoError(t, err)
	defer sf.Close()
	scanRows, err := csv.NewReader(sf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{{"scan_id"}, {"scan-1"}, {"whois-1"}}, scanRows)
}

func TestExport_EmptyWritesNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, iocs.Export(dir, "empty", "20250520_103000", nil))
	require.NoDirExists(t, filepath.Join(dir, iocs.Subdir))
}
