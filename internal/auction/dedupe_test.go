package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Dedupe(t *testing.T) {
	s := NewSession()

	page1 := []CapturedItem{
		{"saNo": "A", "maemulSer": "1", "printSt": "first"},
		{"saNo": "A", "maemulSer": "2"},
		{"saNo": "A", "printSt": "duplicate of A_1 via default sequence"},
		{"saNo": "B", "maemulSer": "1"},
	}
	out := s.Dedupe(page1)
	require.Len(t, out, 3)
	assert.Equal(t, "first", out[0].Get("printSt"), "first occurrence wins")
	assert.Equal(t, CompositeKey("A_2"), KeyOf(out[1]))
	assert.Equal(t, CompositeKey("B_1"), KeyOf(out[2]))

	page2 := []CapturedItem{
		{"saNo": "B", "maemulSer": "1"},
		{"saNo": "C", "maemulSer": "1"},
	}
	out = s.Dedupe(page2)
	require.Len(t, out, 1)
	assert.Equal(t, CompositeKey("C_1"), KeyOf(out[0]))

	assert.Equal(t, 4, s.Len())
	assert.Empty(t, s.Dedupe(page1), "a replayed page adds nothing")
}

func TestSession_DistinctSiteIDs(t *testing.T) {
	s := NewSession()
	items := []CapturedItem{
		{"saNo": "X", "maemulSer": "1"},
		{"saNo": "X", "maemulSer": "1"},
		{"saNo": "Y", "maemulSer": "1"},
	}

	seen := map[string]bool{}
	for _, item := range s.Dedupe(items) {
		rec := MapToRecord(item, SourceSearch, time.Now())
		assert.False(t, seen[rec.SiteID], "site id %s emitted twice", rec.SiteID)
		seen[rec.SiteID] = true
	}
	assert.Len(t, seen, 2)
}
