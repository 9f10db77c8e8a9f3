package finance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	beforeCutoff = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	afterCutoff  = time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
)

func TestIncentiveRate(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name              string
		property          string
		ownership         string
		constructionStart time.Time
		now               time.Time
		want              float64
	}{
		{"residential purchase", "residential", "purchase", time.Time{}, beforeCutoff, 0.0},
		{"residential lease", "residential", "lease", time.Time{}, beforeCutoff, 0.30},
		{"residential unpinned defaults to purchase", "residential", "", time.Time{}, beforeCutoff, 0.0},
		{"commercial before cutoff", "commercial", "purchase", beforeCutoff, beforeCutoff, 0.30},
		{"commercial started after cutoff keeps full rate", "commercial", "purchase", time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC), afterCutoff, 0.30},
		{"commercial zero start uses now", "commercial", "purchase", time.Time{}, beforeCutoff, 0.30},
		{"commercial zero start past cutoff", "commercial", "purchase", time.Time{}, afterCutoff, 0.30},
		{"industrial before cutoff", "industrial", "purchase", beforeCutoff, beforeCutoff, 0.30},
		{"industrial after cutoff keeps full rate", "industrial", "purchase", afterCutoff, afterCutoff, 0.30},
		{"industrial lease follows commercial rule", "industrial", "lease", beforeCutoff, beforeCutoff, 0.30},
		{"unknown property treated as residential", "warehouse-ish", "lease", time.Time{}, beforeCutoff, 0.30},
		{"case and whitespace normalized", " Residential ", " LEASE ", time.Time{}, beforeCutoff, 0.30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.IncentiveRate(tt.property, tt.ownership, tt.constructionStart, tt.now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIncentiveRate_Purity(t *testing.T) {
	p := DefaultPolicy()
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, p.IncentiveRate("residential", "purchase", time.Time{}, beforeCutoff))
		assert.Equal(t, 0.30, p.IncentiveRate("residential", "lease", time.Time{}, beforeCutoff))
	}
}

func TestHorizonYears(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 25, p.HorizonYears("residential"))
	assert.Equal(t, 20, p.HorizonYears("commercial"))
	assert.Equal(t, 20, p.HorizonYears("industrial"))
	assert.Equal(t, 25, p.HorizonYears(""))
	assert.Equal(t, 25, p.ForcedHorizonYears)
}

func TestNotice(t *testing.T) {
	p := DefaultPolicy()
	assert.Contains(t, p.Notice("residential", "purchase"), "expired")
	assert.Contains(t, p.Notice("residential", "lease"), "30%")
	assert.Contains(t, p.Notice("commercial", "purchase"), "30%")
	assert.Contains(t, p.Notice("commercial", "purchase"), "phase-out")
	assert.Contains(t, p.Notice("industrial", "purchase"), "July 4, 2026")
}

func TestWarning(t *testing.T) {
	p := DefaultPolicy()

	got := p.Warning("commercial", beforeCutoff)
	assert.Equal(t, "NOTE: You must commence construction by July 4, 2026, to lock in this 30% credit.", got)

	assert.Equal(t, got, p.Warning("industrial", beforeCutoff))
	assert.Empty(t, p.Warning("commercial", afterCutoff))
	assert.Empty(t, p.Warning("residential", beforeCutoff))
}
