package results_test

import (
	"testing"

	"github.com/MalasadaTech/masq-monitor/internal/results"
	"github.com/stretchr/testify/require"
)

func TestDefangURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "http scheme and host",
			input: "http://evil.example.com/path",
			want:  "hxxp://evil[.]example[.]com/path",
		},
		{
			name:  "https scheme",
			input: "https://evil.example.com/",
			want:  "hxxps://evil[.]example[.]com/",
		},
		{
			name:  "query and fragment preserved",
			input: "https://login.usaa.example.net/auth?next=account.html#top",
			want:  "hxxps://login[.]usaa[.]example[.]net/auth?next=account.html#top",
		},
		{
			name:  "dots in path untouched",
			input: "http://evil.example.com/fake.site/index.html",
			want:  "hxxp://evil[.]example[.]com/fake.site/index.html",
		},
		{
			name:  "port kept",
			input: "http://evil.example.com:8080/x",
			want:  "hxxp://evil[.]example[.]com:8080/x",
		},
		{
			name:  "userinfo defanged with host",
			input: "http://paypal.com@evil.example.com/login",
			want:  "hxxp://paypal[.]com@evil[.]example[.]com/login",
		},
		{
			name:  "local filename unchanged",
			input: "report.html",
			want:  "report.html",
		},
		{
			name:  "relative path unchanged",
			input: "images/abc-123.png",
			want:  "images/abc-123.png",
		},
		{
			name:  "bare word unchanged",
			input: "not-a-url",
			want:  "not-a-url",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
		{
			name:  "non-http scheme still defangs host",
			input: "ftp://files.example.com/drop",
			want:  "ftp://files[.]example[.]com/drop",
		},
		{
			name:  "malformed percent escape still defanged",
			input: "http://evil.example.com/%zz",
			want:  "hxxp://evil[.]example[.]com/%zz",
		},
		{
			name:  "unparseable https authority still defanged",
			input: "https://evil.example.com/%zz?q=%gg",
			want:  "hxxps://evil[.]example[.]com/%zz?q=%gg",
		},
		{
			name:  "unparseable url without path defangs whole string",
			input: "http://evil.example.com%zz",
			want:  "hxxp://evil[.]example[.]com%zz",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := results.DefangURL(tt.input)
			require.Equal(t, tt.want, got)
			if tt.input != tt.want {
				require.NotContains(t, got, "http://")
			}
		})
	}
}

func TestDefangDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple domain", "usaa-login.example.net", "usaa-login[.]example[.]net"},
		{"single label", "localhost", "localhost"},
		{"ip address", "192.0.2.10", "192[.]0[.]2[.]10"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, results.DefangDomain(tt.input))
		})
	}
}
