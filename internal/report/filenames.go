package report

import (
	"fmt"
	"time"

	"github.com/MalasadaTech/masq-monitor/internal/tlp"
)

// TimestampLayout is the filename-safe stamp embedded in run
// directories and report names.
const TimestampLayout = "20060102_150405"

// ImagesSubdir holds downloaded screenshots inside a run directory.
const ImagesSubdir = "images"

// Timestamp formats a run time for filenames.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// RunDirName names the per-run output directory. Group runs carry a
// suffix so a group and a same-named query never share a directory.
func RunDirName(name, ts string, group bool) string {
	if group {
		return fmt.Sprintf("%s_%s_group", name, ts)
	}
	return fmt.Sprintf("%s_%s", name, ts)
}

// Filename names the report file, embedding the logical name, the run
// timestamp, and the resolved ceiling so the classification is visible
// without opening the file.
func Filename(name, ts string, ceiling tlp.Level) string {
	return fmt.Sprintf("report_%s_%s_%s.html", name, ts, ceiling.Label())
}
