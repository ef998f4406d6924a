/*
Package extract handles the batch extract boundary.

PURPOSE:
  Upstream systems deliver sales as row-oriented, header-keyed extracts.
  This package turns those into []Record - an order-preserving list of
  header->value maps - and provides the lenient field parsers the
  reconciliation policy requires: a blank or malformed value is a
  best-effort miss, never an error.

KEY TYPES:
  Record:       One extract row, addressed by trimmed header name
  ReadCSV:      Reader for delimited extracts with a header row

PARSERS:
  ParseUSDate:  "MM/DD/YY" and "MM/DD/YYYY" with a 1950 century pivot;
                returns nil on anything unparseable
  ParsePayout:  Dollar amounts with "$" and "," decorations stripped

SEE ALSO:
  - normal/, fidium/: The channel flows consuming these records
  - cmd/reconcile: CLI that feeds CSV files through this package
*/
package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORD - One header-keyed extract row
// =============================================================================

// Record is a single extract row. Values are addressed by header name;
// lookups trim surrounding whitespace from the stored value, matching how
// upstream files pad their cells.
type Record map[string]string

// Get returns the trimmed value under a header, or "" when absent.
func (r Record) Get(header string) string {
	return strings.TrimSpace(r[header])
}

// Has reports whether the row carries a non-blank value under a header.
func (r Record) Has(header string) bool {
	return r.Get(header) != ""
}

// =============================================================================
// CSV GATEWAY
// =============================================================================

// ReadCSV parses a delimited extract whose first row is the header.
// Rows shorter than the header are padded with blanks; ragged extra cells
// are dropped. An empty file yields zero records, not an error.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // upstream files are ragged

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read extract header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading extract row: %w", err)
		}
		rec := make(Record, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(row) {
				rec[h] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadCSVFile opens and parses one extract file.
func ReadCSVFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open extract file %s: %w", path, err)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// =============================================================================
// LENIENT FIELD PARSERS
// =============================================================================

// ParseUSDate parses "MM/DD/YY" or "MM/DD/YYYY" dates. Two-digit years
// below 50 are 20xx, 50..99 are 19xx. Falls back to a few common layouts,
// and returns nil - never an error - when nothing fits: a sale with an
// unreadable date resolves at base rates rather than failing the run.
func ParseUSDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if parts := strings.Split(s, "/"); len(parts) == 3 {
		mm, errM := parseIntField(parts[0])
		dd, errD := parseIntField(parts[1])
		yy, errY := parseIntField(parts[2])
		if errM == nil && errD == nil && errY == nil {
			if yy < 50 {
				yy += 2000
			} else if yy < 100 {
				yy += 1900
			}
			if mm >= 1 && mm <= 12 && dd >= 1 && dd <= 31 {
				t := time.Date(yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
				return &t
			}
		}
	}

	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &t
		}
	}
	return nil
}

func parseIntField(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	return n, err
}

// ParsePayout parses a dollar value like "$1,250.00". Returns (zero, false)
// on blank or malformed input.
func ParsePayout(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
