package assetpath

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// NormalizeDate turns YYYY-MM-DD, YYYY.MM.DD, YYYY/MM/DD or YYYYMMDD into
// YYYY-MM-DD. Historical folders use both the dashed and the dotted form, so
// date segments must be normalized before any comparison.
func NormalizeDate(s string) (string, error) {
	d := strings.TrimSpace(s)
	if d == "" {
		return "", &InvalidNameError{Field: "date", Value: s, Reason: "empty"}
	}

	if len(d) == 8 && isDigits(d) {
		d = d[:4] + "-" + d[4:6] + "-" + d[6:]
	} else {
		d = strings.NewReplacer(".", "-", "/", "-").Replace(d)
	}

	t, err := time.Parse(dateLayout, d)
	if err != nil {
		return "", &InvalidNameError{Field: "date", Value: s, Reason: "not a calendar date"}
	}
	return t.Format(dateLayout), nil
}

// SameDate compares two date strings after normalization. Unparseable
// input never matches.
func SameDate(a, b string) bool {
	na, err := NormalizeDate(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeDate(b)
	if err != nil {
		return false
	}
	return na == nb
}

// IsDateSegment reports whether a path segment is a date folder in any of
// the accepted forms.
func IsDateSegment(seg string) bool {
	if len(seg) != 10 && len(seg) != 8 {
		return false
	}
	_, err := NormalizeDate(seg)
	return err == nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
