package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractLocation(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		filters map[string]string
		want    string
	}{
		{"zip code", "chargers near 80202 please", nil, "80202"},
		{"zip wins over city", "chargers in Denver, CO near 80202", nil, "80202"},
		{"city state", "rates in Denver, CO today", nil, "Denver, CO"},
		{"multi word city", "rates in Colorado Springs, CO", nil, "Colorado Springs, CO"},
		{"coordinates", "solar at 39.7392,-104.9903", nil, "39.7392,-104.9903"},
		{"filter zip fallback", "solar production estimate", map[string]string{"zip_code": "80202"}, "80202"},
		{"filter state fallback", "solar production estimate", map[string]string{"state": "CO"}, "CO"},
		{"nothing", "solar production estimate", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractLocation(tt.text, tt.filters))
		})
	}
}

func TestExtractCapacityKW(t *testing.T) {
	assert.Equal(t, 10.0, extractCapacityKW("a 10kW system"))
	assert.Equal(t, 7.5, extractCapacityKW("install 7.5 kW of panels"))
	assert.Equal(t, 5.0, extractCapacityKW("5 KW array"))
	assert.Equal(t, 0.0, extractCapacityKW("how much solar can I make"))
	assert.Equal(t, 0.0, extractCapacityKW("about 12 kwh per day"))
}

func TestClassifyProperty(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"solar for my home in 80202", "residential"},
		{"solar for my business", "commercial"},
		{"warehouse optimization", "commercial"},
		{"industrial site sizing", "industrial"},
		{"my home business numbers", "residential"},
		{"what's the ROI of solar", "residential"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyProperty(tt.text), tt.text)
	}
}

func TestClassifyOwnership(t *testing.T) {
	assert.Equal(t, "lease", classifyOwnership("should I lease solar panels"))
	assert.Equal(t, "lease", classifyOwnership("a PPA for my roof"))
	assert.Equal(t, "purchase", classifyOwnership("should I buy solar panels"))
	assert.Equal(t, "", classifyOwnership("what's the ROI of going solar"))
}
