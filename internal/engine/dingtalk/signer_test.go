package dingtalk

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"
	"testing"
)

func TestSign(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		timestamp int64
		expected  string
	}{
		{
			name:      "Padding Escaped",
			secret:    "SEC123",
			timestamp: 1700000000000,
			expected:  "lkcPI1uoxBY1gUnCnnPH1Kkru0Hqjo7rFpA3haIVhEQ%3D",
		},
		{
			name:      "Plus And Slash Escaped",
			secret:    "SECdingbot",
			timestamp: 1700000000001,
			expected:  "X4BvxUbKoxU0Fu5oXMm4DjbzG0ffRiEH%2BAF%2Fq0HOv0M%3D",
		},
		{
			name:      "Secret Trimmed",
			secret:    "  SECabc  ",
			timestamp: 1,
			expected:  "12l%2F3BnQNEP6qQBGDxoeXNAUdEkWYxNjlLZvnk898sk%3D",
		},
		{
			name:      "Empty Secret",
			secret:    "",
			timestamp: 1700000000000,
			expected:  "",
		},
		{
			name:      "Whitespace Secret",
			secret:    " \t\n",
			timestamp: 1700000000000,
			expected:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sign(tt.secret, tt.timestamp)
			if got != tt.expected {
				t.Errorf("Sign() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSign_Shape(t *testing.T) {
	escaped := regexp.MustCompile(`^[A-Za-z0-9%._~-]+$`)

	for ts := int64(1700000000000); ts < 1700000000050; ts++ {
		sig := Sign("SECshape", ts)
		if sig != Sign("SECshape", ts) {
			t.Fatalf("Sign() not deterministic for %d", ts)
		}
		if !escaped.MatchString(sig) {
			t.Fatalf("Sign() = %q leaks unescaped characters", sig)
		}

		raw, err := url.QueryUnescape(sig)
		if err != nil {
			t.Fatalf("QueryUnescape(%q): %v", sig, err)
		}
		digest, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			t.Fatalf("DecodeString(%q): %v", raw, err)
		}
		if len(digest) != 32 {
			t.Fatalf("digest length = %d, want 32", len(digest))
		}
	}

	if Sign("SECshape", 1) == Sign("SECshape", 2) {
		t.Error("signatures for different timestamps must differ")
	}
}

func TestSignedURL(t *testing.T) {
	const token = "https://oapi.dingtalk.com/robot/send?access_token=abc"

	t.Run("No Secret", func(t *testing.T) {
		if got := SignedURL(token, "", 1700000000000); got != token {
			t.Errorf("SignedURL() = %v, want %v", got, token)
		}
	})

	t.Run("Existing Query", func(t *testing.T) {
		got := SignedURL(token, "SEC123", 1700000000000)
		suffix := "&timestamp=1700000000000&sign=lkcPI1uoxBY1gUnCnnPH1Kkru0Hqjo7rFpA3haIVhEQ%3D"
		if got != token+suffix {
			t.Errorf("SignedURL() = %v, want suffix %v", got, suffix)
		}
		if !regexp.MustCompile(`&timestamp=\d+&sign=[A-Za-z0-9%._~-]+$`).MatchString(got) {
			t.Errorf("SignedURL() = %v has unexpected shape", got)
		}
	})

	t.Run("Bare URL", func(t *testing.T) {
		got := SignedURL("https://example.com/hook", "SEC123", 1700000000000)
		if !strings.HasPrefix(got, "https://example.com/hook?timestamp=1700000000000&sign=") {
			t.Errorf("SignedURL() = %v", got)
		}
	})

	t.Run("Trailing Separator", func(t *testing.T) {
		got := SignedURL(token+"&", "SEC123", 1700000000000)
		if strings.Contains(got, "&&") {
			t.Errorf("SignedURL() = %v doubles the separator", got)
		}
	})
}
