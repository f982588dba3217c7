package update

import "testing"

func TestNewVersionNumber(t *testing.T) {
	tests := []struct {
		in        string
		version   string
		qualifier string
	}{
		{"7.1.0", "7.1.0", ""},
		{"7.1.0-rc1", "7.1.0", "rc1"},
		{"7.1.0-beta-2", "7.1.0", "beta-2"},
		{"7.1.0-", "7.1.0", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v := NewVersionNumber(tt.in)
			if v.Complete() != tt.in {
				t.Errorf("Complete() = %q, want %q", v.Complete(), tt.in)
			}
			if v.Version() != tt.version {
				t.Errorf("Version() = %q, want %q", v.Version(), tt.version)
			}
			if v.Qualifier() != tt.qualifier {
				t.Errorf("Qualifier() = %q, want %q", v.Qualifier(), tt.qualifier)
			}
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"2.0.0", "1.9.9", 1},
		{"1.9.9", "2.0.0", -1},
		{"7.1.0", "7.1.0-rc1", 1},
		{"7.1.0-rc1", "7.1.0", -1},
		{"1.0.0-rc1", "1.0.0-rc2", -1},
		{"1.0.0-rc2", "1.0.0-rc1", 1},
		{"1.0.0-rc1", "1.0.0-rc1", 0},
		// The version part is compared as text, not numerically.
		{"10.0.0", "9.0.0", -1},
		// A trailing '-' leaves an empty qualifier.
		{"1.0.0-", "1.0.0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			if got := CompareVersions(tt.a, tt.b); got != tt.want {
				t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestVersionNumberEqual(t *testing.T) {
	a := NewVersionNumber("7.1.0-rc1")
	b := NewVersionNumber("7.1.0-rc1")
	if !a.Equal(b) {
		t.Error("Expected values built from the same string to be equal")
	}
	if a != b {
		t.Error("Expected values built from the same string to be ==")
	}

	c := NewVersionNumber("1.0.0")
	d := NewVersionNumber("1.0.0-")
	if c.Equal(d) {
		t.Error("Expected different complete strings to be unequal")
	}
	if c.Compare(d) != 0 {
		t.Errorf("Expected %q and %q to compare as 0, got %d", c, d, c.Compare(d))
	}
}
