package player

import "testing"

func TestLangMatches(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"fr", "fr", true},
		{"fra", "fr", true},
		{"fre", "fr", true},
		{"fre", "fra", true},
		{"FR", "fra", true},
		{"eng", "en", true},
		{"ger", "de", true},
		{"deu", "de", true},
		{"eng", "de", false},
		{"fr", "en", false},
		{"", "fr", false},
		{"", "", false},
		{"und", "und", false},
		{"xx-weird", "xx-weird", true},
	}
	for _, tc := range cases {
		t.Run(tc.a+"_"+tc.b, func(t *testing.T) {
			if got := langMatches(tc.a, tc.b); got != tc.want {
				t.Errorf("langMatches(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestNormalizeLang(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"fre", "fr"},
		{"fra", "fr"},
		{"eng", "en"},
		{" EN ", "en"},
		{"", ""},
		{"zzz-not-a-code", "zzz-not-a-code"},
	}
	for _, tc := range cases {
		if got := normalizeLang(tc.in); got != tc.want {
			t.Errorf("normalizeLang(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
