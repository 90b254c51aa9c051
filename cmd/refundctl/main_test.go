package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/refundmatch/internal/feedback"
	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/fyrsmithlabs/refundmatch/internal/matcher"
)

const historyJSON = `{
  "vendors": [
    {"vendor_name": "Crown Castle International Corp", "historical_sample_count": 42,
     "historical_success_rate": 0.9, "basis_counts": {"MPU": 30, "Out of state": 8}}
  ],
  "patterns": [
    {"id": "pat-tower", "description": "tower antenna lease services",
     "success_rate": 0.92, "sample_count": 30, "typical_basis": "MPU"},
    {"description": "office chairs desks", "success_rate": 0.1, "sample_count": 3}
  ]
}`

// resetFlags restores package-level flag variables between executions.
func resetFlags() {
	configPath = ""
	outputJSONFlag = false
	verbose = false
	matchMinOverlap = 0
	precVendor = ""
	precDescription = ""
	patMinRate = -1
	patMinSamples = -1
	legalTopK = 0
	corrVendor = ""
	corrDescription = ""
	corrApproved = false
	corrDenied = false
	corrBasis = ""
	corrReviewer = ""
	serverURL = "http://localhost:9191"
}

// setupHome points HOME at a temp dir so history lands in a private bolt file.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("REFUNDMATCH_HISTORY_BACKEND", "bolt")
	return home
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCLI_HistoryWorkflow(t *testing.T) {
	home := setupHome(t)
	input := writeFile(t, home, "history.json", historyJSON)

	out, _, err := execute(t, "ingest", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 1 vendor(s) and 2 pattern(s)")

	t.Run("match vendor exact", func(t *testing.T) {
		out, _, err := execute(t, "match", "vendor", "crown castle international corp", "--json")
		require.NoError(t, err)

		var m matcher.VendorMatch
		require.NoError(t, json.Unmarshal([]byte(out), &m))
		assert.Equal(t, matcher.MatchExact, m.Type)
		assert.Equal(t, "CROWN CASTLE INTERNATIONAL CORP", m.Record.VendorName)
		assert.Equal(t, "MPU", m.Record.TypicalBasis)
		assert.Equal(t, []string{"CASTLE", "CROWN", "INTERNATIONAL"}, m.Record.VendorKeywords)
	})

	t.Run("match vendor fuzzy", func(t *testing.T) {
		out, _, err := execute(t, "match", "vendor", "Crown Castle USA", "--min-overlap", "2")
		require.NoError(t, err)
		assert.Contains(t, out, "fuzzy match")
		assert.Contains(t, out, "CASTLE, CROWN")
		assert.Contains(t, out, "90%")
	})

	t.Run("match vendor none", func(t *testing.T) {
		out, _, err := execute(t, "match", "vendor", "Office Depot")
		require.NoError(t, err)
		assert.Contains(t, out, "No vendor history matched")
	})

	t.Run("match pattern", func(t *testing.T) {
		out, _, err := execute(t, "match", "pattern", "antenna lease for tower site", "--json")
		require.NoError(t, err)

		var m matcher.PatternMatch
		require.NoError(t, json.Unmarshal([]byte(out), &m))
		assert.Equal(t, matcher.MatchFuzzy, m.Type)
		assert.Equal(t, "pat-tower", m.Record.ID)
		assert.Equal(t, 3, m.Score)
		assert.Equal(t, []string{"antenna", "lease", "tower"}, m.OverlapKeywords)
	})

	t.Run("precedent", func(t *testing.T) {
		out, _, err := execute(t, "precedent",
			"--vendor", "Crown Castle International Corp",
			"--description", "antenna lease for tower site",
			"--json")
		require.NoError(t, err)

		var got precedentOutput
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "strong", string(got.Strength))
		assert.Equal(t, "exact", got.Report.VendorMatchType)
		assert.Equal(t, 42, got.Report.VendorCaseCount)
		assert.Equal(t, "92%", got.Report.PatternSuccessRate)
		assert.Contains(t, got.Summary, "has 42 historical cases with 90% refund success rate")
	})

	t.Run("precedent requires input", func(t *testing.T) {
		_, _, err := execute(t, "precedent")
		require.Error(t, err)
	})

	t.Run("patterns table", func(t *testing.T) {
		out, _, err := execute(t, "patterns")
		require.NoError(t, err)
		assert.Contains(t, out, "pat-tower")
		assert.Contains(t, out, "antenna, lease, services, tower")
		assert.NotContains(t, out, "chairs")
		assert.Contains(t, out, "1 pattern(s)")
	})

	t.Run("patterns json with thresholds", func(t *testing.T) {
		out, _, err := execute(t, "patterns", "--min-rate", "0", "--min-samples", "0", "--json")
		require.NoError(t, err)

		var got []history.PatternRecord
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "pat-tower", got[0].ID)
		assert.Equal(t, []string{"chairs", "desks", "office"}, got[1].Keywords)
		assert.NotEmpty(t, got[1].ID)
	})

	t.Run("patterns rejects rate above one", func(t *testing.T) {
		_, _, err := execute(t, "patterns", "--min-rate", "1.5")
		require.Error(t, err)
	})

	t.Run("correct", func(t *testing.T) {
		out, _, err := execute(t, "correct",
			"--vendor", "Crown Castle International Corp",
			"--description", "tower antenna lease renewal",
			"--approved", "--basis", "MPU", "--reviewer", "jdoe",
			"--json")
		require.NoError(t, err)

		var got feedback.Outcome
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, 43, got.Vendor.SampleCount)
		require.NotNil(t, got.Pattern)
		assert.Equal(t, "pat-tower", got.Pattern.ID)
		assert.False(t, got.NewPattern)
		assert.Equal(t, 31, got.Pattern.SampleCount)
	})

	t.Run("batch", func(t *testing.T) {
		in := writeFile(t, home, "in.csv", "Vendor,Description,Amount,Invoice_Number\n"+
			"Crown Castle International Corp,antenna lease for tower site,\"$1,200.00\",INV-1\n"+
			"Unknown Vendor,widgets,10,INV-2\n")
		outPath := filepath.Join(home, "out.csv")

		_, stderr, err := execute(t, "batch", in, outPath)
		require.NoError(t, err)
		assert.Contains(t, stderr, "2 row(s): 0 failed, 1 novel, 0 eligible")

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "vendor,description,amount,invoice_number,vendor_match_type"))
		assert.Contains(t, lines[1], "1200.00")
		assert.Contains(t, lines[1], "exact")
		assert.Contains(t, lines[2], "No historical data (novel vendor/product)")
	})
}

func TestCLI_IngestNormalizesSuppliedKeywords(t *testing.T) {
	home := setupHome(t)
	input := writeFile(t, home, "history.json", `{
  "vendors": [
    {"vendor_name": "ATC Tower Services LLC", "vendor_keywords": ["atc", "tower", "services", "llc"],
     "description_keywords": ["Tower", "Construction"],
     "historical_sample_count": 42, "historical_success_rate": 0.9, "typical_refund_basis": "MPU"}
  ],
  "patterns": [
    {"id": "pat-tower", "keywords": ["Tower", "Construction", "wireless", "of"],
     "success_rate": 0.92, "sample_count": 1200, "typical_basis": "Out-of-State Services"}
  ]
}`)

	_, _, err := execute(t, "ingest", input)
	require.NoError(t, err)

	out, _, err := execute(t, "match", "vendor", "American Tower Company", "--json")
	require.NoError(t, err)
	var vm matcher.VendorMatch
	require.NoError(t, json.Unmarshal([]byte(out), &vm))
	assert.Equal(t, matcher.MatchFuzzy, vm.Type)
	assert.Equal(t, "ATC TOWER SERVICES LLC", vm.Record.VendorName)
	assert.Equal(t, []string{"ATC", "SERVICES", "TOWER"}, vm.Record.VendorKeywords)
	assert.Equal(t, []string{"construction", "tower"}, vm.Record.DescriptionKeywords)
	assert.Equal(t, []string{"TOWER"}, vm.OverlapKeywords)

	out, _, err = execute(t, "match", "pattern", "Tower construction services for cell site", "--json")
	require.NoError(t, err)
	var pm matcher.PatternMatch
	require.NoError(t, json.Unmarshal([]byte(out), &pm))
	assert.Equal(t, matcher.MatchFuzzy, pm.Type)
	assert.Equal(t, []string{"construction", "tower", "wireless"}, pm.Record.Keywords)
	assert.Equal(t, []string{"construction", "tower"}, pm.OverlapKeywords)
}

func TestCLI_IngestInvalid(t *testing.T) {
	home := setupHome(t)
	input := writeFile(t, home, "bad.json", `{"vendors": [{"vendor_name": "X", "historical_success_rate": 1.5}]}`)

	_, _, err := execute(t, "ingest", input)
	require.Error(t, err)
	assert.ErrorIs(t, err, history.ErrInvalidRecord)
}

func TestCLI_CorrectValidation(t *testing.T) {
	setupHome(t)
	_, _, err := execute(t, "correct", "--vendor", "Acme", "--approved")
	require.Error(t, err)
	assert.ErrorIs(t, err, feedback.ErrInvalidCorrection)
}

func TestPrepareIngest(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := &ingestDocument{
		Vendors: []history.VendorRecord{{
			VendorName:               "  acme tower co ",
			DescriptionKeywordCounts: map[string]int{"lease": 4, "Antenna": 4, "tower": 5, "TOWER": 4},
		}},
		Patterns: []ingestPattern{
			{Description: "Fiber-optic cable, installation"},
			{PatternRecord: history.PatternRecord{ID: "keep", Keywords: []string{"steel"}}},
		},
	}

	require.NoError(t, prepareIngest(doc, now, func() string { return "generated" }))

	v := doc.Vendors[0]
	assert.Equal(t, "ACME TOWER CO", v.VendorName)
	assert.Equal(t, []string{"ACME", "TOWER"}, v.VendorKeywords)
	assert.Equal(t, []string{"tower", "antenna", "lease"}, v.DescriptionKeywords)
	assert.Equal(t, now, v.UpdatedAt)

	assert.Equal(t, "generated", doc.Patterns[0].ID)
	assert.Equal(t, []string{"cable", "fiber", "installation", "optic"}, doc.Patterns[0].Keywords)
	assert.Equal(t, "keep", doc.Patterns[1].ID)
	assert.Equal(t, []string{"steel"}, doc.Patterns[1].Keywords)
	assert.Equal(t, map[string]int{"antenna": 4, "lease": 4, "tower": 9}, v.DescriptionKeywordCounts)

	bad := &ingestDocument{Patterns: []ingestPattern{{Description: "a of"}}}
	err := prepareIngest(bad, now, func() string { return "x" })
	assert.ErrorIs(t, err, history.ErrInvalidRecord)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"health", "--server", srv.URL})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "ok")
	assert.Contains(t, out.String(), srv.URL)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "draining", http.StatusServiceUnavailable)
	}))
	defer down.Close()

	_, _, err := execute(t, "health", "--server", down.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"string shorter than max", "hello", 10, "hello"},
		{"string equal to max", "hello", 5, "hello"},
		{"string longer than max", "hello world", 8, "hello..."},
		{"very short max", "hello", 3, "..."},
		{"empty string", "", 10, ""},
		{"multibyte", "Überprüfung", 6, "Übe..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.input, tt.maxLen))
		})
	}
}
