package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sam's Club", "sams club"},
		{"SAMS CLUB", "sams club"},
		{"  sams   club ", "sams club"},
		{"Sam’s Club", "sams club"},
		{"BJ's", "bjs"},
		{"B.J.'s", "bjs"},
		{"Costco-Wholesale", "costco wholesale"},
		{"Smith & Sons", "smith and sons"},
		{"Smith&Sons", "smith and sons"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestLookupNormalized(t *testing.T) {
	m := map[string]float64{"Costco": 2.0, "Sam's Club": 1.0}

	v, ok := lookupNormalized(m, "Costco")
	assert.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-12)

	v, ok = lookupNormalized(m, "SAMS CLUB")
	assert.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-12)

	_, ok = lookupNormalized(m, "BJ's")
	assert.False(t, ok)
}

func TestLookupNormalized_Aliases(t *testing.T) {
	m := map[string]float64{"Sam's Club": 1.0, "Costco Wholesale": 2.0}

	v, ok := lookupNormalized(m, "Sams")
	assert.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-12)

	v, ok = lookupNormalized(m, "Costco")
	assert.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-12)

	_, ok = lookupNormalized(m, "Kirkland")
	assert.False(t, ok)

	v, ok = lookupNormalized(m, "Kirkland", []string{"costco wholesale", "kirkland"})
	assert.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-12)
}

func TestAliasesOf(t *testing.T) {
	assert.Equal(t, []string{"sams club", "sams club wholesale", "sams club inc"}, aliasesOf("sams"))
	assert.Empty(t, aliasesOf("walmart"))
	assert.Equal(t, []string{"wm"}, aliasesOf("walmart", []string{"walmart", "wm"}))
}
