package tlp_test

import (
	"testing"

	"github.com/MalasadaTech/masq-monitor/internal/tlp"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    tlp.Level
		wantErr bool
	}{
		{name: "clear", input: "clear", want: tlp.Clear},
		{name: "white legacy alias", input: "white", want: tlp.White},
		{name: "green", input: "green", want: tlp.Green},
		{name: "amber", input: "amber", want: tlp.Amber},
		{name: "red", input: "red", want: tlp.Red},
		{name: "uppercase accepted", input: "AMBER", want: tlp.Amber},
		{name: "surrounding whitespace", input: " red ", want: tlp.Red},
		{name: "unknown level", input: "purple", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tlp.Parse(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, tlp.ErrInvalidLevel)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestVisible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		item    tlp.Level
		ceiling tlp.Level
		want    bool
	}{
		{"clear under clear", tlp.Clear, tlp.Clear, true},
		{"green under clear", tlp.Green, tlp.Clear, false},
		{"amber under clear", tlp.Amber, tlp.Clear, false},
		{"red under clear", tlp.Red, tlp.Clear, false},
		{"clear under green", tlp.Clear, tlp.Green, true},
		{"green under green", tlp.Green, tlp.Green, true},
		{"amber under green", tlp.Amber, tlp.Green, false},
		{"red under green", tlp.Red, tlp.Green, false},
		{"clear under amber", tlp.Clear, tlp.Amber, true},
		{"green under amber", tlp.Green, tlp.Amber, true},
		{"amber under amber", tlp.Amber, tlp.Amber, true},
		{"red under amber", tlp.Red, tlp.Amber, false},
		{"clear under red", tlp.Clear, tlp.Red, true},
		{"green under red", tlp.Green, tlp.Red, true},
		{"amber under red", tlp.Amber, tlp.Red, true},
		{"red under red", tlp.Red, tlp.Red, true},
		{"white ranks as clear", tlp.White, tlp.Clear, true},
		{"untagged item always visible", "", tlp.Clear, true},
		{"unknown item ranks as clear", "purple", tlp.Clear, true},
		{"unknown ceiling hides nothing", tlp.Red, "bogus", true},
		{"case-insensitive item", "AMBER", tlp.Green, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, tlp.Visible(tt.item, tt.ceiling))
		})
	}
}

func TestCeiling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		requested     tlp.Level
		queryDefault  tlp.Level
		globalDefault tlp.Level
		want          tlp.Level
	}{
		{"requested wins", tlp.Red, tlp.Amber, tlp.Green, tlp.Red},
		{"query default when no request", "", tlp.Amber, tlp.Green, tlp.Amber},
		{"global default as fallback", "", "", tlp.Green, tlp.Green},
		{"clear when nothing set", "", "", "", tlp.Clear},
		{"requested normalized", "AMBER", "", "", tlp.Amber},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := tlp.Ceiling(tt.requested, tt.queryDefault, tt.globalDefault)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLevel_Label(t *testing.T) {
	t.Parallel()

	require.Equal(t, "TLP-CLEAR", tlp.Clear.Label())
	require.Equal(t, "TLP-AMBER", tlp.Amber.Label())
	require.Equal(t, "TLP-RED", tlp.Level("Red").Label())
}

func TestFilterVisible(t *testing.T) {
	t.Parallel()

	items := []tlp.Tagged{
		{Value: "public note"},
		{Value: "community note", Level: tlp.Green},
		{Value: "restricted note", Level: tlp.Amber},
		{Value: "named-recipients note", Level: tlp.Red},
	}

	got := tlp.FilterVisible(items, tlp.Green)
	require.Len(t, got, 2)
	require.Equal(t, "public note", got[0].Value)
	require.Equal(t, "community note", got[1].Value)

	require.Empty(t, tlp.FilterVisible(nil, tlp.Red))
}

func TestRank(t *testing.T) {
	t.Parallel()

	require.Equal(t, tlp.Rank(tlp.Clear), tlp.Rank(tlp.White))
	require.Less(t, tlp.Rank(tlp.Green), tlp.Rank(tlp.Amber))
	require.Less(t, tlp.Rank(tlp.Amber), tlp.Rank(tlp.Red))
	// Unrecognized classifications never outrank real ones.
	require.Equal(t, tlp.Rank(tlp.Clear), tlp.Rank("mystery"))
}
