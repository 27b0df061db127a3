// Package targets loads the listing pages to check from command-line
// arguments, plain text files, or CSV rosters.
package targets

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/tmaeda/urwatch/models"
)

// urlPattern matches listing URLs embedded in free text.
var urlPattern = regexp.MustCompile(`https?://www\.ur-net\.go\.jp/\S+`)

// rosterHeader is the fixed 8-column roster format exported from the
// property spreadsheet: No.,物件名,対象空室数,最寄駅,住所,電話番号,管理年数,URL.
const rosterHeader = "No.,物件名,対象空室数,最寄駅,住所,電話番号,管理年数,URL"

// Column aliases accepted by header-based CSV files.
var (
	urlColumns       = []string{"url", "URL", "リンク", "link"}
	nameColumns      = []string{"name", "名称", "物件名", "property_name", "団地名"}
	phoneColumns     = []string{"phone", "電話", "電話番号", "tel", "TEL"}
	transportColumns = []string{"transportation", "交通", "交通機関", "access", "最寄駅"}
	addressColumns   = []string{"address", "住所", "所在地", "location"}
	yearsColumns     = []string{"management_years", "管理年数", "years", "年数"}
)

// FromURLs builds targets from directly supplied URLs.
func FromURLs(urls []string) []models.Target {
	out := make([]models.Target, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		out = append(out, models.Target{URL: u})
	}
	return out
}

// FromTextFile extracts listing URLs from a free-form text file.
func FromTextFile(path string) ([]models.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read target file: %w", err)
	}

	urls := urlPattern.FindAllString(string(data), -1)
	if len(urls) == 0 {
		return nil, fmt.Errorf("no listing URLs found in %s", path)
	}
	return FromURLs(urls), nil
}

// FromCSVFile loads targets with predefined roster fields from a CSV file.
// Three layouts are recognized: the fixed roster export, headerless
// 8-column rows, and header-based files using known column aliases.
func FromCSVFile(path string) ([]models.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	return parseCSV(f)
}

func parseCSV(r io.Reader) ([]models.Target, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv file is empty")
	}

	first := strings.Join(records[0], ",")
	switch {
	case strings.Contains(first, rosterHeader):
		return parsePositional(records[1:]), nil
	case hasKnownHeader(records[0]):
		return parseWithHeader(records[0], records[1:]), nil
	default:
		return parsePositional(records), nil
	}
}

// parsePositional reads the fixed roster layout: url in column 8, name in
// column 2, transportation/address/phone/years in columns 4-7.
func parsePositional(rows [][]string) []models.Target {
	var out []models.Target
	for _, row := range rows {
		if len(row) < 8 {
			continue
		}
		url := strings.TrimSpace(row[7])
		if !strings.HasPrefix(url, "http") {
			continue
		}
		out = append(out, models.Target{
			URL:             url,
			Name:            strings.TrimSpace(row[1]),
			Transportation:  strings.TrimSpace(row[3]),
			Address:         strings.TrimSpace(row[4]),
			Phone:           strings.TrimSpace(row[5]),
			ManagementYears: strings.TrimSpace(row[6]),
		})
	}
	return out
}

func hasKnownHeader(header []string) bool {
	for _, cell := range header {
		cell = strings.TrimSpace(cell)
		for _, alias := range urlColumns {
			if cell == alias {
				return true
			}
		}
	}
	return false
}

func parseWithHeader(header []string, rows [][]string) []models.Target {
	index := make(map[string]int, len(header))
	for i, cell := range header {
		index[strings.TrimSpace(cell)] = i
	}

	pick := func(row []string, aliases []string) string {
		for _, alias := range aliases {
			if i, ok := index[alias]; ok && i < len(row) {
				if v := strings.TrimSpace(row[i]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	var out []models.Target
	for _, row := range rows {
		url := pick(row, urlColumns)
		if url == "" {
			continue
		}
		out = append(out, models.Target{
			URL:             url,
			Name:            pick(row, nameColumns),
			Transportation:  pick(row, transportColumns),
			Address:         pick(row, addressColumns),
			Phone:           pick(row, phoneColumns),
			ManagementYears: pick(row, yearsColumns),
		})
	}
	return out
}
