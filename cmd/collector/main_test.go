package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/court-auction-scraper/internal/auction"
)

func TestBuildParams(t *testing.T) {
	p, err := buildParams(flags{
		source:   "popular",
		region:   " 서울특별시 ",
		category: "apartment",
		start:    "20240301",
		end:      "2024-03-08",
		maxItems: 20,
		enrich:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, auction.SourcePopular, p.Source)
	assert.Equal(t, "서울특별시", p.Filter.Region)
	assert.Equal(t, "apartment", p.Filter.Category)
	assert.Equal(t, "2024-03-01", p.Filter.Start.Format("2006-01-02"))
	assert.Equal(t, "2024-03-08", p.Filter.End.Format("2006-01-02"))
	assert.Equal(t, 20, p.MaxItems)
	assert.True(t, p.Enrich)
}

func TestBuildParams_Errors(t *testing.T) {
	tests := []struct {
		name string
		f    flags
	}{
		{"unknown source", flags{source: "rss"}},
		{"bad start", flags{start: "March 1"}},
		{"bad end", flags{end: "2024/03/08"}},
		{"reversed window", flags{start: "20240310", end: "20240301"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildParams(tt.f)
			assert.Error(t, err)
		})
	}
}
