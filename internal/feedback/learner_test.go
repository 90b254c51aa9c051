package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var reviewed = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestLearner(t *testing.T, store Store) (*Learner, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	l := NewLearner(store, zap.New(core))
	l.newID = func() string { return "pat-new" }
	return l, logs
}

func TestApply_NewVendorAndPattern(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	l, logs := newTestLearner(t, store)

	out, err := l.Apply(ctx, Correction{
		Vendor:      "  Acme Tower Services LLC ",
		Description: "Tower construction services",
		Approved:    true,
		RefundBasis: "Out-of-State Services",
		ReviewedAt:  reviewed,
	})
	require.NoError(t, err)

	assert.Equal(t, "ACME TOWER SERVICES LLC", out.Vendor.VendorName)
	assert.Equal(t, []string{"ACME", "SERVICES", "TOWER"}, out.Vendor.VendorKeywords)
	assert.Equal(t, 1, out.Vendor.SampleCount)
	assert.InDelta(t, 1.0, out.Vendor.SuccessRate, 1e-9)
	assert.Equal(t, "Out-of-State Services", out.Vendor.TypicalBasis)
	assert.Equal(t, []string{"construction", "services", "tower"}, out.Vendor.DescriptionKeywords)
	assert.Equal(t, reviewed, out.Vendor.UpdatedAt)

	require.NotNil(t, out.Pattern)
	assert.True(t, out.NewPattern)
	assert.Equal(t, "pat-new", out.Pattern.ID)
	assert.Equal(t, []string{"construction", "services", "tower"}, out.Pattern.Keywords)

	stored, err := store.VendorByName(ctx, "ACME TOWER SERVICES LLC")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.SampleCount)

	assert.Equal(t, 1, logs.FilterMessage("applied correction").Len())
}

func TestApply_UpdatesExistingRecords(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	require.NoError(t, store.UpsertVendor(ctx, history.VendorRecord{
		VendorName:          "ATC TOWER SERVICES LLC",
		VendorKeywords:      []string{"ATC", "SERVICES", "TOWER"},
		DescriptionKeywords: []string{"antenna"},
		SampleCount:         3,
		SuccessRate:         1,
		TypicalBasis:        "MPU",
		BasisCounts:         map[string]int{"MPU": 3},
	}))
	require.NoError(t, store.UpsertPattern(ctx, history.PatternRecord{
		ID: "pat-a", Keywords: []string{"construction", "tower"}, SampleCount: 4, SuccessRate: 0.5,
	}))
	require.NoError(t, store.UpsertPattern(ctx, history.PatternRecord{
		ID: "pat-b", Keywords: []string{"construction", "tower", "wireless"}, SampleCount: 9, SuccessRate: 0.5,
	}))
	l, _ := newTestLearner(t, store)

	out, err := l.Apply(ctx, Correction{
		Vendor:      "ATC Tower Services LLC",
		Description: "wireless tower construction",
		Approved:    false,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, out.Vendor.SampleCount)
	assert.InDelta(t, 0.75, out.Vendor.SuccessRate, 1e-9)
	assert.Equal(t, "MPU", out.Vendor.TypicalBasis)
	assert.Equal(t, 3, out.Vendor.BasisCounts["MPU"])
	assert.Equal(t, 1, out.Vendor.DescriptionKeywordCounts["antenna"])
	assert.Equal(t, 1, out.Vendor.DescriptionKeywordCounts["wireless"])

	// pat-b overlaps on three keywords, pat-a on two.
	require.NotNil(t, out.Pattern)
	assert.False(t, out.NewPattern)
	assert.Equal(t, "pat-b", out.Pattern.ID)
	assert.Equal(t, 10, out.Pattern.SampleCount)
	assert.InDelta(t, 0.45, out.Pattern.SuccessRate, 1e-9)
}

func TestApply_PatternTieBreak(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	for _, p := range []history.PatternRecord{
		{ID: "pat-z", Keywords: []string{"fiber", "optic"}, SampleCount: 5},
		{ID: "pat-y", Keywords: []string{"fiber", "optic"}, SampleCount: 5},
		{ID: "pat-x", Keywords: []string{"fiber", "optic"}, SampleCount: 2},
	} {
		require.NoError(t, store.UpsertPattern(ctx, p))
	}
	l, _ := newTestLearner(t, store)

	out, err := l.Apply(ctx, Correction{Vendor: "Lumen", Description: "fiber optic cable", Approved: true, RefundBasis: "MPU"})
	require.NoError(t, err)
	assert.Equal(t, "pat-y", out.Pattern.ID)
	assert.Equal(t, "MPU", out.Pattern.TypicalBasis)
}

func TestApply_SparseDescriptionSkipsPattern(t *testing.T) {
	store := history.NewMemoryStore()
	l, _ := newTestLearner(t, store)

	out, err := l.Apply(context.Background(), Correction{Vendor: "Boeing", Description: "parts", Approved: false})
	require.NoError(t, err)
	assert.Nil(t, out.Pattern)
	assert.Equal(t, []string{"parts"}, out.Vendor.DescriptionKeywords)

	patterns, err := store.PatternsWithKeywords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestApply_Invalid(t *testing.T) {
	l, _ := newTestLearner(t, history.NewMemoryStore())

	_, err := l.Apply(context.Background(), Correction{Vendor: " ", Description: "x"})
	assert.ErrorIs(t, err, ErrInvalidCorrection)

	_, err = l.Apply(context.Background(), Correction{Vendor: "Boeing", Approved: true})
	assert.ErrorIs(t, err, ErrInvalidCorrection)
}

type failingStore struct {
	*history.MemoryStore
	err error
}

func (s failingStore) VendorByName(context.Context, string) (*history.VendorRecord, error) {
	return nil, s.err
}

func TestApply_StoreError(t *testing.T) {
	boom := errors.New("connection refused")
	l, _ := newTestLearner(t, failingStore{MemoryStore: history.NewMemoryStore(), err: boom})

	_, err := l.Apply(context.Background(), Correction{Vendor: "Boeing", Description: "jet engines"})
	assert.ErrorIs(t, err, boom)
}

type patternWriteFailure struct {
	*history.MemoryStore
	err error
}

func (s patternWriteFailure) UpsertPattern(context.Context, history.PatternRecord) error {
	return s.err
}

func TestApply_PatternWriteFailureLeavesVendorUnchanged(t *testing.T) {
	ctx := context.Background()
	diskFull := errors.New("disk full")
	mem := history.NewMemoryStore()
	l, logs := newTestLearner(t, patternWriteFailure{MemoryStore: mem, err: diskFull})

	c := Correction{Vendor: "Acme Tower", Description: "tower construction services", Approved: true, RefundBasis: "MPU"}
	for range 2 {
		_, err := l.Apply(ctx, c)
		assert.ErrorIs(t, err, diskFull)
	}

	_, err := mem.VendorByName(ctx, "ACME TOWER")
	assert.ErrorIs(t, err, history.ErrVendorNotFound)
	assert.Zero(t, logs.FilterMessage("applied correction").Len())

	// Sparse descriptions write no pattern, so the vendor is still recorded.
	out, err := l.Apply(ctx, Correction{Vendor: "Acme Tower", Description: "parts", Approved: false})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Vendor.SampleCount)
}

func TestApply_ClosedStore(t *testing.T) {
	store := history.NewMemoryStore()
	require.NoError(t, store.Close())
	l, _ := newTestLearner(t, store)

	_, err := l.Apply(context.Background(), Correction{Vendor: "Boeing", Description: "jet engines"})
	assert.ErrorIs(t, err, history.ErrStoreClosed)
}

func TestTopKeywords(t *testing.T) {
	counts := map[string]int{"tower": 3, "antenna": 3, "steel": 1, "cable": 2}
	assert.Equal(t, []string{"antenna", "tower", "cable"}, TopKeywords(counts, 3))
	assert.Equal(t, []string{"antenna", "tower", "cable", "steel"}, TopKeywords(counts, 10))
	assert.Empty(t, TopKeywords(nil, 10))
}
