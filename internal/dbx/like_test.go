package dbx

import "testing"

func TestContainsPattern(t *testing.T) {
	cases := map[string]string{
		"":      "%%",
		"bob":   "%bob%",
		"50%":   `%50\%%`,
		`a\b_c`: `%a\\b\_c%`,
	}
	for in, want := range cases {
		if got := ContainsPattern(in); got != want {
			t.Errorf("ContainsPattern(%q) = %q, want %q", in, got, want)
		}
	}
}
