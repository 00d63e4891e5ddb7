package resolve

import (
	"regexp"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
	"github.com/rotisserie/eris"

	"github.com/sells-group/elasticity-cli/internal/contract"
)

// ParseDate extracts the week-ending date from text using rule: strip the
// literal prefix, or take the pattern's capture group, then parse with the
// rule's strftime format. pattern may be nil for prefix rules.
func ParseDate(rule contract.DateRule, pattern *regexp.Regexp, text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	switch {
	case pattern != nil:
		m := pattern.FindStringSubmatch(s)
		if len(m) < 2 {
			return time.Time{}, eris.Errorf("%q does not match pattern %q", s, pattern.String())
		}
		s = m[1]
	case rule.Prefix != "":
		if !strings.HasPrefix(s, strings.TrimSpace(rule.Prefix)) {
			return time.Time{}, eris.Errorf("%q does not start with %q", s, rule.Prefix)
		}
		s = strings.TrimPrefix(s, strings.TrimSpace(rule.Prefix))
	}

	t, err := strftime.Parse(rule.Format, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse %q with %q", s, rule.Format)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
