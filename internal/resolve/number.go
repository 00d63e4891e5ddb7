// Package resolve turns classified extract rows into typed weekly
// observations: week-ending date, average and base price, and volume.
package resolve

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var numberCleaner = strings.NewReplacer("$", "", ",", "", " ", "", " ", "")

// ParseNumber parses an extract cell such as "45,000", "$15.00" or
// "(1,250)". Blank cells are an error; callers decide whether a blank is
// acceptable.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, eris.New("empty value")
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(numberCleaner.Replace(s), 64)
	if err != nil {
		return 0, eris.Errorf("not a number: %q", s)
	}
	if neg {
		v = -v
	}
	return v, nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
