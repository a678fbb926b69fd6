// Package results converts heterogeneous platform payloads into the
// canonical record shape consumed by rendering and IOC extraction.
package results

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/MalasadaTech/masq-monitor/internal/platform"
)

// Result is one platform hit, normalized. Results are immutable after
// normalization and live only for the duration of one run.
type Result struct {
	Platform    platform.Name
	DataType    platform.DataType
	SourceQuery string
	// Raw is the opaque platform payload, kept for generic rendering and
	// IOC extraction over flexible shapes.
	Raw platform.Raw

	URL            string
	Domain         string
	IP             string
	Title          string
	Server         string
	DefangedURL    string
	DefangedDomain string

	ScanID string
	// ScanTime is zero when the platform timestamp was absent or
	// unparseable; ScanTimeRaw preserves the original string either way.
	ScanTime    time.Time
	ScanTimeRaw string

	// LocalScreenshot is the run-relative path of a downloaded
	// screenshot, set by the run pipeline after a successful fetch.
	LocalScreenshot string
	// ScreenshotB64 is the inline-encoded screenshot set at render time
	// so reports are self-contained.
	ScreenshotB64 string

	// Whois is set for DataTypeWhois records.
	Whois *WhoisRecord
	// DomainSearch is set for DataTypeDomainSearch records.
	DomainSearch *DomainSearchRecord
}

// WhoisRecord carries the registration fields of a WHOIS scan record.
// Emails and Nameservers keep the raw value lists for IOC extraction;
// the display strings join them for rendering.
type WhoisRecord struct {
	Domain       string
	Registrar    string
	Created      string
	Updated      string
	Expires      string
	Name         string
	Email        string
	Organization string
	Nameserver   string
	Address      string
	City         string
	State        string
	Country      string
	Zipcode      string
	ScanDate     string

	Emails      []string
	Nameservers []string
}

// DomainSearchRecord carries the diversity metrics of a domain search hit.
type DomainSearchRecord struct {
	Host              string
	ASNDiversity      string
	IPDiversityAll    string
	IPDiversityGroups string
}

// Normalize maps one raw record into the canonical shape for its
// platform and detected data type. Missing fields become empty values,
// never errors.
func Normalize(p platform.Name, dt platform.DataType, rec platform.Raw, sourceQuery string) Result {
	if dt == "" {
		if p == platform.URLScan {
			dt = platform.DataTypeURLScan
		} else {
			dt = platform.DataTypeGeneric
		}
	}

	r := Result{
		Platform:    p,
		DataType:    dt,
		SourceQuery: sourceQuery,
		Raw:         rec,
	}

	switch dt {
	case platform.DataTypeURLScan:
		normalizeURLScan(&r, rec)
	case platform.DataTypeWebscan:
		normalizeWebscan(&r, rec)
	case platform.DataTypeWhois:
		normalizeWhois(&r, rec)
	case platform.DataTypeDomainSearch:
		normalizeDomainSearch(&r, rec)
	case platform.DataTypeGeneric:
		// Raw pass-through only.
	}

	r.DefangedURL = DefangURL(r.URL)
	r.DefangedDomain = DefangDomain(r.Domain)
	if r.ScanTimeRaw != "" {
		if ts, err := dateparse.ParseAny(r.ScanTimeRaw); err == nil {
			r.ScanTime = ts
		}
	}

	return r
}

func normalizeURLScan(r *Result, rec platform.Raw) {
	page := nestedMap(rec, "page")
	r.URL = stringField(page, "url")
	r.Domain = stringField(page, "domain")
	r.IP = stringField(page, "ip")
	r.Title = stringField(page, "title")
	r.Server = stringField(page, "server")

	task := nestedMap(rec, "task")
	r.ScanID = stringField(task, "uuid")
	r.ScanTimeRaw = stringField(task, "time")
}

func normalizeWebscan(r *Result, rec platform.Raw) {
	r.URL = stringField(rec, "url")
	r.Domain = stringField(rec, "domain")
	if r.Domain == "" {
		r.Domain = stringField(rec, "hostname")
	}
	r.IP = stringField(rec, "ip")
	r.Title = stringField(rec, "title")
	r.Server = stringField(rec, "server")
	r.ScanID = stringField(rec, "scan_id")
	r.ScanTimeRaw = stringField(rec, "scan_date")
}

func normalizeWhois(r *Result, rec platform.Raw) {
	w := &WhoisRecord{
		Domain:       stringField(rec, "domain"),
		Registrar:    stringField(rec, "registrar"),
		Created:      stringField(rec, "created"),
		Updated:      stringField(rec, "updated"),
		Expires:      stringField(rec, "expires"),
		Name:         stringField(rec, "name"),
		Organization: stringField(rec, "organization"),
		Address:      stringField(rec, "address"),
		City:         stringField(rec, "city"),
		State:        stringField(rec, "state"),
		Country:      stringField(rec, "country"),
		Zipcode:      stringField(rec, "zipcode"),
		ScanDate:     stringField(rec, "scan_date"),
		Emails:       stringList(rec, "email"),
		Nameservers:  stringList(rec, "nameserver"),
	}
	// Registrant data frequently arrives as the literal string "None".
	if w.Organization == "None" {
		w.Organization = ""
	}
	w.Email = strings.Join(w.Emails, ", ")
	w.Nameserver = strings.Join(w.Nameservers, ", ")

	r.Whois = w
	r.Domain = w.Domain
	r.ScanID = stringField(rec, "scan_id")
	r.ScanTimeRaw = w.ScanDate
}

func normalizeDomainSearch(r *Result, rec platform.Raw) {
	ds := &DomainSearchRecord{
		Host:              stringField(rec, "host"),
		ASNDiversity:      stringField(rec, "asn_diversity"),
		IPDiversityAll:    stringField(rec, "ip_diversity_all"),
		IPDiversityGroups: stringField(rec, "ip_diversity_groups"),
	}
	r.DomainSearch = ds
	r.Domain = ds.Host
}

// RawJSON renders the opaque payload as indented JSON for the generic
// record template. Map keys marshal in sorted order, keeping renders
// deterministic.
func (r Result) RawJSON() string {
	b, err := json.MarshalIndent(r.Raw, "", "  ")
	if err != nil {
		return fmt.Sprint(r.Raw)
	}
	return string(b)
}

// nestedMap returns the map under key, or nil.
func nestedMap(rec platform.Raw, key string) map[string]any {
	if rec == nil {
		return nil
	}
	m, _ := rec[key].(map[string]any)
	return m
}

// stringField coerces a record value to its display string. JSON numbers
// print without a trailing exponent, absent values as "".
func stringField(rec map[string]any, key string) string {
	if rec == nil {
		return ""
	}
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprint(v)
	}
}

// stringList coerces a record value to a string slice: lists keep their
// elements, scalars become a single-element slice, absent values nil.
func stringList(rec map[string]any, key string) []string {
	if rec == nil {
		return nil
	}
	switch v := rec[key].(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return []string{fmt.Sprint(v)}
	}
}
