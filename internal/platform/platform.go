// Package platform defines the contract between the monitor and the
// upstream threat-intelligence search services.
package platform

import (
	"context"
	"fmt"
	"time"
)

// Name identifies a search platform.
type Name string

const (
	// URLScan is the urlscan.io search platform.
	URLScan Name = "urlscan"
	// SilentPush is the Silent Push search platform.
	SilentPush Name = "silentpush"
)

// ParseName validates a platform name from configuration. An empty
// string resolves to URLScan, the historical default.
func ParseName(s string) (Name, error) {
	switch Name(s) {
	case "":
		return URLScan, nil
	case URLScan, SilentPush:
		return Name(s), nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// DataType classifies the shape of a platform payload. Detection is
// deterministic and total: every record resolves to exactly one type,
// falling back to DataTypeGeneric rather than erroring.
type DataType string

const (
	// DataTypeURLScan is the urlscan search result shape (page/task keys).
	DataTypeURLScan DataType = "urlscan"
	// DataTypeWebscan is the Silent Push web scan record shape.
	DataTypeWebscan DataType = "webscan"
	// DataTypeWhois is the Silent Push WHOIS record shape.
	DataTypeWhois DataType = "whois"
	// DataTypeDomainSearch is the Silent Push domain search record shape.
	DataTypeDomainSearch DataType = "domainsearch"
	// DataTypeGeneric is the fallback for unrecognized records, rendered
	// as a key-value table.
	DataTypeGeneric DataType = "generic"
)

// Raw is one unprocessed platform record.
type Raw = map[string]any

// Batch is the outcome of a single search call.
type Batch struct {
	Records []Raw
	// DataType is set when the response envelope fixes the shape of every
	// record in the batch; empty means per-record detection applies.
	DataType DataType
}

// Window is the effective lookback window of a search. End is the run's
// start time; Start is derived from last_run or a configured day count.
type Window struct {
	Start time.Time
	End   time.Time
}

// Client is the capability surface the run pipeline needs from a platform.
type Client interface {
	// Name reports which platform this client talks to.
	Name() Name
	// Search executes a stored query, folding the window into the
	// platform's own date-filter syntax. The endpoint selects a
	// platform-specific sub-resource and may be empty.
	Search(ctx context.Context, query string, window Window, endpoint string) (Batch, error)
	// DetectDataType classifies one record when the batch carried no
	// envelope-level type. Total: unrecognized shapes yield
	// DataTypeGeneric, never an error.
	DetectDataType(rec Raw) DataType
	// FetchScreenshot returns the platform-hosted screenshot for a scan,
	// or (nil, nil) when the platform has none.
	FetchScreenshot(ctx context.Context, scanID string) ([]byte, error)
}

// Error wraps an upstream failure with the platform and operation that
// produced it. A search that fails with an Error must not advance the
// query's last_run.
type Error struct {
	Platform Name
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a platform error for the given operation.
func NewError(p Name, op string, err error) *Error {
	return &Error{Platform: p, Op: op, Err: err}
}
