// Package migrate evolves the index schema across software versions: an
// ordered catalog of idempotent, versioned transformations executed by the
// Manager before any other component trusts the database.
package migrate

import (
	"strconv"
	"strings"
)

// CompareVersions compares two dotted version strings numerically segment by
// segment, zero-padding the shorter one. It returns -1, 0, or 1. Lexical
// string comparison is never used ("1.10.0" sorts after "1.9.0").
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(strings.TrimSpace(as[i]))
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(strings.TrimSpace(bs[i]))
		}
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}
