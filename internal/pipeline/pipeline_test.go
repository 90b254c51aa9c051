package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/refundmatch/internal/classifier"
	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/fyrsmithlabs/refundmatch/internal/legal"
	"github.com/fyrsmithlabs/refundmatch/internal/logging"
	"github.com/fyrsmithlabs/refundmatch/internal/matcher"
	"github.com/fyrsmithlabs/refundmatch/internal/precedent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBuilder(t *testing.T) *precedent.Builder {
	t.Helper()
	ctx := context.Background()
	store := history.NewMemoryStore()
	require.NoError(t, store.UpsertVendor(ctx, history.VendorRecord{
		VendorName:     "ATC TOWER SERVICES LLC",
		VendorKeywords: []string{"ATC", "SERVICES", "TOWER"},
		SampleCount:    42,
		SuccessRate:    0.9,
		TypicalBasis:   "Out-of-State Services",
	}))
	require.NoError(t, store.UpsertPattern(ctx, history.PatternRecord{
		ID:           "pat-tower",
		Keywords:     []string{"construction", "tower", "wireless"},
		SampleCount:  15234,
		SuccessRate:  0.92,
		TypicalBasis: "Out-of-State Services",
	}))
	return precedent.NewBuilder(
		matcher.NewVendorMatcher(store, zap.NewNop()),
		matcher.NewPatternMatcher(store, zap.NewNop()),
	)
}

type stubSearcher struct {
	err     error
	queries []string
}

func (s *stubSearcher) Search(_ context.Context, query string, k int) ([]legal.Passage, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return []legal.Passage{{Citation: "WAC 458-20-193", Text: "interstate sales"}}[:min(k, 1)], nil
}

type stubClassifier struct {
	failVendor string
	seen       []*precedent.Precedent
}

func (c *stubClassifier) Classify(_ context.Context, tx classifier.Transaction, passages []legal.Passage, p *precedent.Precedent) (*classifier.Verdict, error) {
	c.seen = append(c.seen, p)
	if tx.Vendor == c.failVendor {
		return nil, classifier.ErrInvalidVerdict
	}
	return &classifier.Verdict{
		Eligible:    p.Strength() == precedent.StrengthStrong,
		RefundBasis: "Out-of-State Services",
		Confidence:  0.9,
		Reasoning:   "ok",
		Citations:   []string{passages[0].Citation},
	}, nil
}

var batch = []classifier.Transaction{
	{Vendor: "ATC Tower Services LLC", Description: "wireless tower construction", Amount: 12500},
	{Vendor: "Boeing", Description: "office chairs"},
	{Vendor: "Broken Co", Description: "mystery item"},
}

func TestRun(t *testing.T) {
	logger := logging.NewTestLogger()
	search := &stubSearcher{}
	cls := &stubClassifier{failVendor: "Broken Co"}
	r := NewRunner(newBuilder(t), WithSearcher(search, 3), WithClassifier(cls), WithLogger(logger.Logger))
	r.newID = func() string { return "batch-1" }

	results := r.Run(context.Background(), batch)
	require.Len(t, results, 3)

	first := results[0]
	assert.Equal(t, 0, first.Row)
	assert.NoError(t, first.Err)
	assert.Equal(t, precedent.StrengthStrong, first.Precedent.Strength())
	require.NotNil(t, first.Verdict)
	assert.True(t, first.Verdict.Eligible)
	assert.Len(t, first.Passages, 1)

	assert.True(t, results[1].Precedent.IsNovel())
	assert.NoError(t, results[1].Err)

	// A failing row is recorded and the batch carries on.
	assert.ErrorIs(t, results[2].Err, classifier.ErrInvalidVerdict)
	assert.Nil(t, results[2].Verdict)
	assert.NotNil(t, results[2].Precedent)

	assert.Equal(t, []string{"wireless tower construction", "office chairs", "mystery item"}, search.queries)
	assert.Len(t, cls.seen, 3)

	logger.AssertField(t, "batch finished", "batch.id", "batch-1")
	logger.AssertField(t, "batch finished", "failed", int64(1))
	logger.AssertField(t, "row failed", "row.index", int64(2))
	logger.AssertLogged(t, zapcore.WarnLevel, "row failed")

	assert.Equal(t, Stats{Total: 3, Failed: 1, Novel: 2, Eligible: 1}, Summarize(results))
}

func TestRun_SearchErrorStillClassifies(t *testing.T) {
	boom := errors.New("embedding server down")
	cls := &stubClassifier{}
	r := NewRunner(newBuilder(t), WithSearcher(&stubSearcher{err: boom}, 0), WithClassifier(&classifierWithoutPassages{cls}))

	results := r.Run(context.Background(), batch[:1])
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.NotNil(t, results[0].Verdict)
}

// classifierWithoutPassages tolerates an empty passage list.
type classifierWithoutPassages struct{ *stubClassifier }

func (c *classifierWithoutPassages) Classify(ctx context.Context, tx classifier.Transaction, passages []legal.Passage, p *precedent.Precedent) (*classifier.Verdict, error) {
	if len(passages) == 0 {
		passages = []legal.Passage{{Citation: "none"}}
	}
	return c.stubClassifier.Classify(ctx, tx, passages, p)
}

func TestRun_PrecedentOnly(t *testing.T) {
	results := NewRunner(newBuilder(t)).Run(context.Background(), batch)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.Nil(t, r.Verdict)
		assert.Nil(t, r.Passages)
		assert.NotNil(t, r.Precedent)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewRunner(newBuilder(t)).Run(ctx, batch)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestReadTransactionsCSV(t *testing.T) {
	in := "\ufeffInvoice_Number, Vendor,Description,Amount\n" +
		"INV-1,ATC Tower Services LLC,\"Tower construction, phase 2\",\"$12,500.00\"\n" +
		",,,\n" +
		"INV-2,Boeing,office chairs,\n"

	txs, err := ReadTransactionsCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, classifier.Transaction{
		Vendor:        "ATC Tower Services LLC",
		Description:   "Tower construction, phase 2",
		Amount:        12500,
		InvoiceNumber: "INV-1",
	}, txs[0])
	assert.Equal(t, "Boeing", txs[1].Vendor)
	assert.Zero(t, txs[1].Amount)
}

func TestReadTransactionsCSV_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"missing description", "vendor,amount\nBoeing,10\n"},
		{"bad amount", "vendor,description,amount\nBoeing,chairs,ten\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTransactionsCSV(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, ErrInvalidCSV)
		})
	}
}

func TestWriteResultsCSV(t *testing.T) {
	cls := &stubClassifier{failVendor: "Broken Co"}
	r := NewRunner(newBuilder(t), WithSearcher(&stubSearcher{}, 1), WithClassifier(cls))
	results := r.Run(context.Background(), batch)

	var buf bytes.Buffer
	require.NoError(t, WriteResultsCSV(&buf, results))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	header := rows[0]
	assert.Equal(t, ResultsHeader(), header)
	assert.Len(t, header, 16)

	first := rows[1]
	assert.Equal(t, []string{
		"ATC Tower Services LLC", "wireless tower construction", "12500.00", "",
		"exact", "42", "90%", "fuzzy", "92%",
	}, first[:9])
	assert.Contains(t, first[9], "has 42 historical cases with 90% refund success rate")
	assert.Equal(t, []string{"true", "Out-of-State Services", "0.90", "ok", "WAC 458-20-193", ""}, first[10:])

	novel := rows[2]
	assert.Equal(t, []string{"none", "0", "", "none", "", precedent.NoHistoryMessage}, novel[4:10])

	failed := rows[3]
	assert.Contains(t, failed[15], "invalid verdict")
	assert.Equal(t, "", failed[10])
}

func TestWriteResultsCSV_EscapesFormulas(t *testing.T) {
	r := NewRunner(newBuilder(t))
	results := r.Run(context.Background(), []classifier.Transaction{
		{Vendor: "=HYPERLINK(\"http://evil\")", Description: "+cmd", Amount: -12.5, InvoiceNumber: "@A1"},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteResultsCSV(&buf, results))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"'=HYPERLINK(\"http://evil\")", "'+cmd", "-12.50", "'@A1"}, rows[1][:4])
}
