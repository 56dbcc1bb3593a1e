package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRank_OrdersCriticalHighest(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Greater(t, SeverityLow.Rank(), SeverityInfo.Rank())
}

func TestMotion_MaxSeverityRoundTrips(t *testing.T) {
	m := &Motion{Name: "Motion to Compel"}
	assert.Equal(t, Severity(""), m.MaxSeverity())

	m.SetMaxSeverity(SeverityHigh)
	assert.Equal(t, SeverityHigh, m.MaxSeverity())
}
