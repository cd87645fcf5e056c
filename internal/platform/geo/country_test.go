package geo

import "testing"

func TestNormalizeCountry(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "JP", want: "JP", ok: true},
		{in: "us", want: "US", ok: true},
		{in: " gb ", want: "GB", ok: true},
		{in: "de", want: "DE", ok: true},
		{in: "ss", want: "SS", ok: true},
		{in: "", ok: false},
		{in: "USA", ok: false},
		{in: "392", ok: false},
		{in: "J1", ok: false},
		{in: "XX", ok: false},
		{in: "ZZ", ok: false},
	}

	for _, tc := range cases {
		got, ok := NormalizeCountry(tc.in)
		if ok != tc.ok {
			t.Fatalf("NormalizeCountry(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("NormalizeCountry(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeCountryRejectsReservedAndDeprecatedCodes(t *testing.T) {
	for _, code := range []string{
		"UK", "EU", "UN", "EZ", "AC", "IC", "EA", "DG", "CP", "TA",
		"SU", "YU", "CS", "AN", "BU", "CQ", "FX", "XK", "QO", "XA",
	} {
		if got, ok := NormalizeCountry(code); ok {
			t.Fatalf("expected %s rejected, got %q", code, got)
		}
	}
}

func TestISOTableSize(t *testing.T) {
	if len(iso3166Alpha2) != 249 {
		t.Fatalf("expected 249 assigned codes, got %d", len(iso3166Alpha2))
	}
}
