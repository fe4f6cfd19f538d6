package version

import "testing"

func TestParseOrdinal(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"1.2.3", false},
		{"0.65.2", false},
		{"129.0.6668.90", false},
		{"v1.2.3", false},
		{"7", false},
		{"1.2.3.4.5", true},
		{"1.2.x", true},
		{"", true},
		{"beta", true},
	}

	for _, tc := range cases {
		_, err := Parse(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
	}
}

func TestCompareZeroExtension(t *testing.T) {
	a := MustParse("1.2.3")
	b := MustParse("1.2.3.0")
	if !a.Equal(b) {
		t.Errorf("1.2.3 should equal 1.2.3.0")
	}

	c := MustParse("1.2.3.1")
	if !a.Less(c) {
		t.Errorf("1.2.3 should order before 1.2.3.1")
	}
	if !c.AtLeast(a) {
		t.Errorf("1.2.3.1 should be at least 1.2.3")
	}
}

func TestCompareOrdering(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2.0", "1.2.0", 0},
		{"1.1.0", "1.2.0", -1},
		{"1.10.0", "1.9.0", 1},
		{"0.65.2", "0.65.10", -1},
		{"2.0.0", "1.99.99", 1},
	}

	for _, tc := range cases {
		got := MustParse(tc.a).Compare(MustParse(tc.b))
		if got != tc.want {
			t.Errorf("Compare(%s, %s) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestEqualNil(t *testing.T) {
	var a *Ordinal
	if a.Equal(MustParse("1.0.0")) {
		t.Error("nil should not equal a parsed version")
	}
	if !a.Equal(nil) {
		t.Error("nil should equal nil")
	}
}

func TestParseReleaseTag(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"1.2.3", false},
		{"v1.2.3", false},
		{"release-0.4.1", false},
		{"1.2", true},
		{"1.2.3.4", true},
		{"1.2.3-rc1", true},
		{"1.2.3+build5", true},
		{"latest", true},
		{"", true},
	}

	for _, tc := range cases {
		_, err := ParseReleaseTag(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseReleaseTag(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
	}
}

func TestParseReleaseTagValue(t *testing.T) {
	v, err := ParseReleaseTag("v0.4.1")
	if err != nil {
		t.Fatalf("ParseReleaseTag: %v", err)
	}
	if v.Major() != 0 || v.Minor() != 4 || v.Patch() != 1 {
		t.Errorf("parsed %s, want 0.4.1", v)
	}
}
