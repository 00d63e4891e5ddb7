package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_String(t *testing.T) {
	assert.Equal(t, "target", RoleTarget.String())
	assert.Equal(t, "competitor", RoleCompetitor.String())
	assert.Equal(t, "discard", RoleDiscard.String())
}

func TestWeeklyPanelRecord_MaskedTerms(t *testing.T) {
	rec := WeeklyPanelRecord{PromoDepth: -0.2, LogCompetitorPrice: 1.5}
	assert.Zero(t, rec.PromoTerm())
	assert.Zero(t, rec.CompetitorTerm())

	rec.HasPromo = true
	rec.HasCompetitor = true
	assert.InDelta(t, -0.2, rec.PromoTerm(), 1e-12)
	assert.InDelta(t, 1.5, rec.CompetitorTerm(), 1e-12)
}

func TestWeeklyPanelRecord_Season(t *testing.T) {
	tests := []struct {
		rec  WeeklyPanelRecord
		want string
	}{
		{WeeklyPanelRecord{Spring: true}, "spring"},
		{WeeklyPanelRecord{Summer: true}, "summer"},
		{WeeklyPanelRecord{Fall: true}, "fall"},
		{WeeklyPanelRecord{}, "winter"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.Season())
		})
	}
}

func TestRawTable_HasColumn(t *testing.T) {
	tbl := &RawTable{Header: []string{"Product", "Time"}}
	assert.True(t, tbl.HasColumn("Time"))
	assert.False(t, tbl.HasColumn("time"))
}
