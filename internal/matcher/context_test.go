package matcher

import (
	"encoding/json"
	"testing"

	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVendorContext(t *testing.T) {
	rec := history.VendorRecord{
		VendorName:   "ATC TOWER SERVICES LLC",
		SampleCount:  42,
		SuccessRate:  0.9,
		TypicalBasis: "Out-of-State Services",
	}

	t.Run("exact", func(t *testing.T) {
		got := VendorContext(&VendorMatch{Record: rec, Type: MatchExact, Score: 3})
		require.NotNil(t, got)
		assert.Equal(t,
			"Historical precedent (exact match): Vendor 'ATC TOWER SERVICES LLC' has 42 historical cases with 90% refund success rate. Typical basis: Out-of-State Services",
			*got)
	})

	t.Run("fuzzy appends overlap", func(t *testing.T) {
		got := VendorContext(&VendorMatch{Record: rec, Type: MatchFuzzy, Score: 2, OverlapKeywords: []string{"SERVICES", "TOWER"}})
		require.NotNil(t, got)
		assert.Equal(t,
			"Historical precedent (fuzzy match): Vendor 'ATC TOWER SERVICES LLC' has 42 historical cases with 90% refund success rate. Typical basis: Out-of-State Services (Matched on keywords: SERVICES, TOWER)",
			*got)
	})

	t.Run("nil match has no context", func(t *testing.T) {
		assert.Nil(t, VendorContext(nil))
		assert.Nil(t, PatternContext(nil))
	})
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "0%", Percent(0))
	assert.Equal(t, "92%", Percent(0.92))
	assert.Equal(t, "100%", Percent(1))
	assert.Equal(t, "67%", Percent(2.0/3.0))
}

func TestMatchType_Text(t *testing.T) {
	for _, mt := range []MatchType{MatchNone, MatchExact, MatchFuzzy} {
		text, err := mt.MarshalText()
		require.NoError(t, err)

		var back MatchType
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, mt, back)
	}

	var mt MatchType
	assert.Error(t, mt.UnmarshalText([]byte("partial")))
}

func TestMatchResult_JSON(t *testing.T) {
	m := &PatternMatch{
		Record:          history.PatternRecord{ID: "pat-1", Keywords: []string{"tower"}},
		Type:            MatchFuzzy,
		Score:           1,
		OverlapKeywords: []string{"tower"},
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"match_type":"fuzzy"`)
	assert.Contains(t, string(data), `"overlap_keywords":["tower"]`)

	exact, err := json.Marshal(&VendorMatch{Type: MatchExact, Score: 2})
	require.NoError(t, err)
	assert.NotContains(t, string(exact), "overlap_keywords")
}
