// Package iocs extracts typed indicators of compromise from normalized
// results and exports them as CSV and JSON artifacts.
package iocs

import (
	"github.com/MalasadaTech/masq-monitor/internal/platform"
	"github.com/MalasadaTech/masq-monitor/internal/results"
)

// Type classifies an extracted indicator. The taxonomy is fixed;
// unrecognized record fields are ignored, never coerced into it.
type Type string

const (
	TypeDomain       Type = "domain"
	TypeIP           Type = "ip"
	TypeURL          Type = "url"
	TypeTitle        Type = "title"
	TypeServer       Type = "server"
	TypeEmail        Type = "email"
	TypeRegistrar    Type = "registrar"
	TypeNameserver   Type = "nameserver"
	TypeOrganization Type = "organization"
)

// Types lists the taxonomy in export order.
var Types = []Type{
	TypeDomain,
	TypeIP,
	TypeURL,
	TypeTitle,
	TypeServer,
	TypeEmail,
	TypeRegistrar,
	TypeNameserver,
	TypeOrganization,
}

// IOC is one extracted indicator, tied to the scan that produced it.
// Records are append-only per run and never deduplicated across runs.
type IOC struct {
	Type   Type   `json:"type"`
	Value  string `json:"value"`
	ScanID string `json:"source_scan_id"`
}

// Extract walks results in input order and collects their indicators.
// What a result yields depends on its data type: scan records carry
// network observables, WHOIS records carry registration artifacts,
// domain search records only the host. Generic records yield nothing.
func Extract(rs []results.Result) []IOC {
	var out []IOC
	for i := range rs {
		out = append(out, fromResult(&rs[i])...)
	}
	return out
}

func fromResult(r *results.Result) []IOC {
	switch r.DataType {
	case platform.DataTypeURLScan, platform.DataTypeWebscan:
		return fromScan(r)
	case platform.DataTypeWhois:
		return fromWhois(r)
	case platform.DataTypeDomainSearch:
		return fromDomainSearch(r)
	default:
		return nil
	}
}

func fromScan(r *results.Result) []IOC {
	var out []IOC
	out = appendIOC(out, TypeDomain, r.Domain, r.ScanID)
	out = appendIOC(out, TypeIP, r.IP, r.ScanID)
	out = appendIOC(out, TypeURL, r.URL, r.ScanID)
	out = appendIOC(out, TypeTitle, r.Title, r.ScanID)
	out = appendIOC(out, TypeServer, r.Server, r.ScanID)
	return out
}

func fromWhois(r *results.Result) []IOC {
	w := r.Whois
	if w == nil {
		return nil
	}
	var out []IOC
	out = appendIOC(out, TypeDomain, w.Domain, r.ScanID)
	out = appendIOC(out, TypeRegistrar, w.Registrar, r.ScanID)
	for _, email := range w.Emails {
		out = appendIOC(out, TypeEmail, email, r.ScanID)
	}
	for _, ns := range w.Nameservers {
		out = appendIOC(out, TypeNameserver, ns, r.ScanID)
	}
	out = appendIOC(out, TypeOrganization, w.Organization, r.ScanID)
	return out
}

func fromDomainSearch(r *results.Result) []IOC {
	if r.DomainSearch == nil {
		return nil
	}
	return appendIOC(nil, TypeDomain, r.DomainSearch.Host, "")
}

func appendIOC(out []IOC, t Type, value, scanID string) []IOC {
	if value == "" {
		return out
	}
	return append(out, IOC{Type: t, Value: value, ScanID: scanID})
}
