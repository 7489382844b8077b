package extract

import (
	"math"
	"regexp"
	"strconv"
)

var (
	servingsRange = regexp.MustCompile(`(?i)(\d+)\s*(?:-|–|—|to)\s*(\d+)`)
	integerRun    = regexp.MustCompile(`\d+`)
)

// ResolveServings turns a free-form servings value into a single count.
// Ranges such as "4-6" or "4 to 6" resolve to their mean, rounded half up.
// The result only drives nutrition estimation and is never written back.
func ResolveServings(v any) *int {
	switch s := v.(type) {
	case nil:
		return nil
	case int:
		if !fitsColumn(float64(s)) {
			return nil
		}
		return &s
	case float64:
		if s != math.Trunc(s) || !fitsColumn(s) {
			return nil
		}
		n := int(s)
		return &n
	case string:
		if m := servingsRange.FindStringSubmatch(s); m != nil {
			lo, errLo := strconv.Atoi(m[1])
			hi, errHi := strconv.Atoi(m[2])
			if errLo != nil || errHi != nil {
				return nil
			}
			if !fitsColumn(float64(lo)) || !fitsColumn(float64(hi)) {
				return nil
			}
			n := (lo + hi + 1) / 2
			return &n
		}
		if runs := integerRun.FindAllString(s, -1); len(runs) == 1 {
			n, err := strconv.Atoi(runs[0])
			if err != nil || !fitsColumn(float64(n)) {
				return nil
			}
			return &n
		}
	}
	return nil
}

// fitsColumn reports whether v is finite and within the 32-bit range of the
// integer columns recipes are stored in.
func fitsColumn(v float64) bool {
	return !math.IsNaN(v) && v >= math.MinInt32 && v <= math.MaxInt32
}
