package runner

import (
	"testing"
	"time"

	"github.com/MalasadaTech/masq-monitor/internal/query"
	"github.com/stretchr/testify/require"
)

func TestEffectiveWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	lastRun := time.Date(2025, 5, 18, 6, 30, 0, 0, time.UTC)
	futureRun := now.Add(48 * time.Hour)

	tests := []struct {
		name         string
		q            query.Query
		overrideDays int
		defaultDays  int
		wantStart    time.Time
	}{
		{
			name:         "override beats last_run and query days",
			q:            query.Query{LastRun: &lastRun, Days: 30},
			overrideDays: 2,
			defaultDays:  7,
			wantStart:    now.AddDate(0, 0, -2),
		},
		{
			name:        "last_run beats query days and default",
			q:           query.Query{LastRun: &lastRun, Days: 30},
			defaultDays: 7,
			wantStart:   lastRun,
		},
		{
			name:        "query days beat default",
			q:           query.Query{Days: 3},
			defaultDays: 7,
			wantStart:   now.AddDate(0, 0, -3),
		},
		{
			name:        "default days as last resort",
			q:           query.Query{},
			defaultDays: 7,
			wantStart:   now.AddDate(0, 0, -7),
		},
		{
			name:        "future last_run is clock skew, ignored",
			q:           query.Query{LastRun: &futureRun, Days: 3},
			defaultDays: 7,
			wantStart:   now.AddDate(0, 0, -3),
		},
		{
			name:        "future last_run falls through to default",
			q:           query.Query{LastRun: &futureRun},
			defaultDays: 7,
			wantStart:   now.AddDate(0, 0, -7),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := EffectiveWindow(&tt.q, tt.overrideDays, tt.defaultDays, now)
			require.True(t, w.Start.Equal(tt.wantStart), "start = %v, want %v", w.Start, tt.wantStart)
			require.True(t, w.End.Equal(now))
			require.False(t, w.End.Before(w.Start), "window must never have negative length")
		})
	}
}
