package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/simmonsip/trawler/internal/trawl"
)

// ParseCompetitorsCSV reads a header-row CSV of competitors. Header names
// are matched case-insensitively; "name" and "url" columns are required.
// Rows missing a URL are skipped.
func ParseCompetitorsCSV(r io.Reader) ([]trawl.Competitor, error) {
	rows, header, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	nameCol, ok := header["name"]
	if !ok {
		return nil, fmt.Errorf("missing required column %q", "name")
	}
	urlCol, ok := header["url"]
	if !ok {
		return nil, fmt.Errorf("missing required column %q", "url")
	}
	var out []trawl.Competitor
	for _, row := range rows {
		c := trawl.Competitor{
			Name: field(row, nameCol),
			URL:  field(row, urlCol),
		}
		if c.URL == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseKeywordsCSV reads a header-row CSV of keyword records. The
// "keyword" column is required; "patent" is optional. Rows missing a
// phrase are skipped.
func ParseKeywordsCSV(r io.Reader) ([]trawl.Keyword, error) {
	rows, header, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	phraseCol, ok := header["keyword"]
	if !ok {
		return nil, fmt.Errorf("missing required column %q", "keyword")
	}
	patentCol, hasPatent := header["patent"]
	var out []trawl.Keyword
	for _, row := range rows {
		kw := trawl.Keyword{Phrase: field(row, phraseCol)}
		if hasPatent {
			kw.Patent = field(row, patentCol)
		}
		if kw.Phrase == "" {
			continue
		}
		out = append(out, kw)
	}
	return out, nil
}

func readCSV(r io.Reader) ([][]string, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("csv is empty")
	}
	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return records[1:], header, nil
}

func field(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
