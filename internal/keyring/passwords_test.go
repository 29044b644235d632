package keyring_test

import (
	"errors"
	"testing"

	"github.com/skhoury/notereader/internal/keyring"
)

func TestParsePasswordConfig(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   []keyring.PasswordEntry
	}{
		{
			name:   "single entry",
			config: "3336eb7a2472d9ae4a690a978fa8a46f,plaintext_password",
			want: []keyring.PasswordEntry{
				{KeyIDFragment: "3336eb7a2472d9ae4a690a978fa8a46f", Password: "plaintext_password"},
			},
		},
		{
			name:   "multiple entries",
			config: "3336eb7a,first;9a20a9e4,second",
			want: []keyring.PasswordEntry{
				{KeyIDFragment: "3336eb7a", Password: "first"},
				{KeyIDFragment: "9a20a9e4", Password: "second"},
			},
		},
		{
			name:   "password containing commas splits at first only",
			config: "ab12,pass,with,commas",
			want: []keyring.PasswordEntry{
				{KeyIDFragment: "ab12", Password: "pass,with,commas"},
			},
		},
		{
			name:   "fields trimmed",
			config: "  ab12 , secret ",
			want: []keyring.PasswordEntry{
				{KeyIDFragment: "ab12", Password: "secret"},
			},
		},
		{
			name:   "trailing separator tolerated",
			config: "ab12,secret;",
			want: []keyring.PasswordEntry{
				{KeyIDFragment: "ab12", Password: "secret"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := keyring.ParsePasswordConfig(tc.config)
			if err != nil {
				t.Fatalf("parse %q: %v", tc.config, err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d entries, want %d: %+v", len(got), len(tc.want), got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("entry %d = %+v, want %+v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestParsePasswordConfigEmpty(t *testing.T) {
	got, err := keyring.ParsePasswordConfig("")
	if err != nil {
		t.Fatalf("empty config: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("empty config yielded %d entries", len(got))
	}
}

func TestParsePasswordConfigMalformed(t *testing.T) {
	for _, config := range []string{
		"no-comma-here",
		",password_without_fragment",
		"fragment_without_password,",
		"ab12,good;broken",
	} {
		if _, err := keyring.ParsePasswordConfig(config); !errors.Is(err, keyring.ErrMalformedConfig) {
			t.Fatalf("config %q: expected ErrMalformedConfig, got %v", config, err)
		}
	}
}
