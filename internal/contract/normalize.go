package contract

import (
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

var (
	nameFolder   = cases.Fold()
	nameReplacer = strings.NewReplacer(
		"'", "",
		"’", "",
		".", "",
		"-", " ",
		"&", " and ",
	)
)

// NormalizeName folds a retailer name so naming variants compare equal:
// "Sam's Club", "SAMS CLUB" and "sams  club" all become "sams club".
func NormalizeName(name string) string {
	name = nameFolder.String(strings.TrimSpace(name))
	name = nameReplacer.Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// knownAliases groups normalized spellings of the same wholesale club.
var knownAliases = [][]string{
	{"bjs", "bj s", "bjs wholesale", "bjs wholesale club"},
	{"sams", "sams club", "sams club wholesale", "sams club inc"},
	{"costco", "costco wholesale", "costco wholesale corp"},
}

// aliasesOf returns the normalized names that stand for the same retailer
// as norm: the built-in family containing it, then every extra family
// containing it, in order. norm itself is not repeated.
func aliasesOf(norm string, extra ...[]string) []string {
	var out []string
	for _, family := range append(slices.Clone(knownAliases), extra...) {
		if !slices.Contains(family, norm) {
			continue
		}
		for _, a := range family {
			if a != norm && !slices.Contains(out, a) {
				out = append(out, a)
			}
		}
	}
	return out
}

// lookupNormalized finds key in m by exact match first, then by normalized
// name, then through the alias families.
func lookupNormalized[V any](m map[string]V, key string, families ...[]string) (V, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	want := NormalizeName(key)
	for _, name := range append([]string{want}, aliasesOf(want, families...)...) {
		for _, k := range keys {
			if NormalizeName(k) == name {
				return m[k], true
			}
		}
	}
	var zero V
	return zero, false
}
