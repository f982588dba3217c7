package update

import "strings"

// VersionNumber is a version string split at its first '-' into a version part
// and a qualifier, e.g. "7.1.0-rc1" has version "7.1.0" and qualifier "rc1".
//
// Equal and Compare are deliberately different contracts. Equal compares the
// complete strings. Compare orders by the (version, qualifier) decomposition,
// comparing the version part as a plain string rather than numerically, and
// ranks a release without qualifier above any qualified one with the same
// version part. Two values can therefore compare as 0 without being Equal.
type VersionNumber struct {
	complete  string
	version   string
	qualifier string
}

// NewVersionNumber parses s. It never fails.
func NewVersionNumber(s string) VersionNumber {
	version, qualifier, _ := strings.Cut(s, "-")
	return VersionNumber{complete: s, version: version, qualifier: qualifier}
}

// Complete returns the string the value was built from.
func (v VersionNumber) Complete() string { return v.complete }

// Version returns the part before the first '-'.
func (v VersionNumber) Version() string { return v.version }

// Qualifier returns the part after the first '-', or "".
func (v VersionNumber) Qualifier() string { return v.qualifier }

func (v VersionNumber) String() string { return v.complete }

// Equal reports whether both values were built from the same string.
func (v VersionNumber) Equal(o VersionNumber) bool {
	return v.complete == o.complete
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, together
// with, or after o.
func (v VersionNumber) Compare(o VersionNumber) int {
	if c := strings.Compare(v.version, o.version); c != 0 {
		return c
	}
	switch {
	case v.qualifier == "" && o.qualifier == "":
		return 0
	case v.qualifier == "":
		return 1
	case o.qualifier == "":
		return -1
	default:
		return strings.Compare(v.qualifier, o.qualifier)
	}
}

// CompareVersions compares two version strings with VersionNumber ordering.
func CompareVersions(a, b string) int {
	return NewVersionNumber(a).Compare(NewVersionNumber(b))
}

func trimV(s string) string {
	return strings.TrimPrefix(s, "v")
}
