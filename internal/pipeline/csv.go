package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/refundmatch/internal/classifier"
	"github.com/fyrsmithlabs/refundmatch/internal/precedent"
	"github.com/fyrsmithlabs/refundmatch/internal/sanitize"
)

var ErrInvalidCSV = errors.New("invalid transaction CSV")

var inputColumns = []string{"vendor", "description", "amount", "invoice_number"}

var verdictColumns = []string{"eligible", "refund_basis", "confidence", "reasoning", "citations", "error"}

// ReadTransactionsCSV reads transactions from CSV with a header row. The
// vendor and description columns are required; amount and invoice_number
// are optional. Header names are matched case-insensitively in any order.
func ReadTransactionsCSV(r io.Reader) ([]classifier.Transaction, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing header row", ErrInvalidCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, required := range inputColumns[:2] {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%w: missing %q column", ErrInvalidCSV, required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var txs []classifier.Transaction
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}

		tx := classifier.Transaction{
			Vendor:        field(rec, "vendor"),
			Description:   field(rec, "description"),
			InvoiceNumber: field(rec, "invoice_number"),
		}
		if tx.Vendor == "" && tx.Description == "" {
			continue
		}
		if raw := field(rec, "amount"); raw != "" {
			amount, err := parseAmount(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: amount %q", ErrInvalidCSV, line, raw)
			}
			tx.Amount = amount
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func parseAmount(s string) (float64, error) {
	s = strings.NewReplacer("$", "", ",", "").Replace(s)
	return strconv.ParseFloat(s, 64)
}

// ResultsHeader is the header row written by WriteResultsCSV.
func ResultsHeader() []string {
	header := make([]string, 0, len(inputColumns)+len(precedent.ReportHeader)+len(verdictColumns))
	header = append(header, inputColumns...)
	header = append(header, precedent.ReportHeader...)
	return append(header, verdictColumns...)
}

// WriteResultsCSV writes one row per result: the input columns, the six
// precedent report fields and the verdict.
func WriteResultsCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultsHeader()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range results {
		if err := cw.Write(resultRow(r)); err != nil {
			return fmt.Errorf("writing row %d: %w", r.Row, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}

func resultRow(r Result) []string {
	tx := r.Transaction
	amount := ""
	if tx.Amount != 0 {
		amount = strconv.FormatFloat(tx.Amount, 'f', 2, 64)
	}

	row := []string{
		sanitize.SpreadsheetCell(tx.Vendor),
		sanitize.SpreadsheetCell(tx.Description),
		amount,
		sanitize.SpreadsheetCell(tx.InvoiceNumber),
	}
	report := r.Precedent.ReportFields()
	report.Summary = sanitize.SpreadsheetCell(report.Summary)
	row = append(row, report.Row()...)

	verdict := make([]string, len(verdictColumns))
	if v := r.Verdict; v != nil {
		verdict[0] = strconv.FormatBool(v.Eligible)
		verdict[1] = sanitize.SpreadsheetCell(v.RefundBasis)
		verdict[2] = strconv.FormatFloat(v.Confidence, 'f', 2, 64)
		verdict[3] = sanitize.SpreadsheetCell(v.Reasoning)
		verdict[4] = sanitize.SpreadsheetCell(strings.Join(v.Citations, "; "))
	}
	if r.Err != nil {
		verdict[5] = sanitize.SpreadsheetCell(r.Err.Error())
	}
	return append(row, verdict...)
}
