package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// documentFileMode matches the permissions analysts expect on a
// hand-edited configuration file.
const documentFileMode = 0o644

// commitMu serializes write-backs across runner goroutines. Concurrent
// processes against the same document remain unsafe and must be
// serialized externally.
var commitMu sync.Mutex

// CommitLastRun records a successful run by writing ts into the
// last_run of every named entry and persisting the document. The patch
// operates on the retained raw document so unrecognized keys survive
// round trips, and the file is replaced atomically via a temp file so a
// crash mid-write never corrupts the document. The in-memory store
// advances alongside the file; a long-lived scheduler keeps computing
// windows from the same entries, so they must track every commit.
func (c *Config) CommitLastRun(names []string, ts time.Time) error {
	commitMu.Lock()
	defer commitMu.Unlock()

	section, err := queriesSection(c.raw)
	if err != nil {
		return &Error{Path: c.Path, Err: err}
	}

	stamp := ts.UTC().Format(time.RFC3339)
	for _, name := range names {
		entry, ok := section[name].(map[string]any)
		if !ok {
			return &Error{Path: c.Path, Err: fmt.Errorf("patching last_run: entry %q not found", name)}
		}
		entry["last_run"] = stamp
	}
	// Re-attach in case the section was normalized from a map[any]any.
	c.raw["queries"] = section

	var data []byte
	if c.asJSON {
		data, err = json.MarshalIndent(c.raw, "", "    ")
		if err == nil {
			data = append(data, '\n')
		}
	} else {
		data, err = yaml.Marshal(c.raw)
	}
	if err != nil {
		return &Error{Path: c.Path, Err: fmt.Errorf("encoding document: %w", err)}
	}

	if err := c.writeAtomic(data); err != nil {
		return err
	}

	committed := ts.UTC()
	for _, name := range names {
		if q, ok := c.Store.GetQuery(name); ok {
			t := committed
			q.LastRun = &t
			continue
		}
		if g, ok := c.Store.GetGroup(name); ok {
			t := committed
			g.LastRun = &t
		}
	}
	return nil
}

func (c *Config) writeAtomic(data []byte) error {
	dir := filepath.Dir(c.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(c.Path)+".tmp-*")
	if err != nil {
		return &Error{Path: c.Path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &Error{Path: c.Path, Err: err}
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &Error{Path: c.Path, Err: err}
	}
	if err = os.Chmod(tmpName, documentFileMode); err != nil {
		os.Remove(tmpName)
		return &Error{Path: c.Path, Err: err}
	}
	if err = os.Rename(tmpName, c.Path); err != nil {
		os.Remove(tmpName)
		return &Error{Path: c.Path, Err: err}
	}
	return nil
}
