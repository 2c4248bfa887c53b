// Package coastal serves the static coastal-hazard datasets: accident counts and steep slopes
package coastal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// table is a parsed CSV file. Rows shorter than the header are already dropped.
type table struct {
	header []string
	rows   [][]string
}

// readTable parses a UTF-8 CSV file with a header line
func readTable(path string, logger *zap.Logger) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return parseTable(f, logger)
}

func parseTable(r io.Reader, logger *zap.Logger) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &table{header: header}
	for {
		cols, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			logger.Warn("skip malformed line", zap.Int("line", perr.Line), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading rows: %w", err)
		}
		if blank(cols) {
			continue
		}
		if len(cols) < len(header) {
			line, _ := cr.FieldPos(0)
			logger.Warn("skip short line", zap.Int("line", line), zap.Strings("cols", cols))
			continue
		}
		t.rows = append(t.rows, cols)
	}
	return t, nil
}

// index returns the position of the first header matching any name, ignoring case, or -1
func (t *table) index(names ...string) int {
	for i, h := range t.header {
		for _, n := range names {
			if strings.EqualFold(h, n) {
				return i
			}
		}
	}
	return -1
}

// col returns cols[i] trimmed, or "" when i is out of range
func col(cols []string, i int) string {
	if i < 0 || i >= len(cols) {
		return ""
	}
	return strings.TrimSpace(cols[i])
}

func blank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
