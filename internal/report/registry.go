// Package report renders normalized results into self-contained,
// TLP-redacted HTML documents.
package report

import (
	"github.com/MalasadaTech/masq-monitor/internal/platform"
)

// Partial names the result templates defined in the embedded set.
const (
	PartialURLScan      = "urlscan_result"
	PartialWebscan      = "silentpush_webscan"
	PartialWhois        = "silentpush_whois"
	PartialDomainSearch = "silentpush_domainsearch"
	PartialGeneric      = "silentpush_generic"
)

type registryKey struct {
	platform platform.Name
	dataType platform.DataType
}

// Registry maps (platform, data type) pairs to result partials. Lookup
// is total: a pair with no entry falls back to the default partial, so
// every result renders through something.
type Registry struct {
	entries  map[registryKey]string
	fallback string
}

// NewRegistry builds the registry with the standard entries.
func NewRegistry() *Registry {
	r := &Registry{
		entries:  make(map[registryKey]string),
		fallback: PartialURLScan,
	}

	r.Register(platform.URLScan, platform.DataTypeURLScan, PartialURLScan)
	r.Register(platform.SilentPush, platform.DataTypeWebscan, PartialWebscan)
	r.Register(platform.SilentPush, platform.DataTypeWhois, PartialWhois)
	r.Register(platform.SilentPush, platform.DataTypeDomainSearch, PartialDomainSearch)
	r.Register(platform.SilentPush, platform.DataTypeGeneric, PartialGeneric)

	return r
}

// Register adds or replaces the partial for a pair.
func (r *Registry) Register(p platform.Name, dt platform.DataType, partial string) {
	r.entries[registryKey{platform: p, dataType: dt}] = partial
}

// Lookup returns the partial for a pair, or the fallback.
func (r *Registry) Lookup(p platform.Name, dt platform.DataType) string {
	if partial, ok := r.entries[registryKey{platform: p, dataType: dt}]; ok {
		return partial
	}
	return r.fallback
}
