// Package export writes run reports in flat output-only formats. These are
// views of the property result list for human consumption; they are never
// read back. The canonical machine format is the snapshot store's JSON.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/tmaeda/urwatch/models"
)

// OutputWriter defines the interface for run-report output.
type OutputWriter interface {
	Write(results []models.PropertyResult) error
	Close() error
	Validate() error
}

// CSVWriter writes one row per property with units flattened into a cell.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

var csvHeader = []string{
	"url", "name", "title", "unit_count", "units",
	"phone", "phone_source", "transportation", "transportation_source",
	"address", "address_source", "management_years", "management_years_source",
	"status", "error",
}

// NewCSVWriter initialises a CSV report and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{file: f, writer: writer}, nil
}

// Write appends property results to the CSV report.
func (cw *CSVWriter) Write(results []models.PropertyResult) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for i := range results {
		r := &results[i]
		record := []string{
			r.URL,
			r.Name,
			r.Title,
			strconv.Itoa(r.UnitCount),
			flattenUnits(r.Units),
			r.Phone,
			string(r.PhoneSource),
			r.Transportation,
			string(r.TransportationSource),
			r.Address,
			string(r.AddressSource),
			r.ManagementYears,
			string(r.ManagementYearsSource),
			r.Status,
			r.Error,
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

func flattenUnits(units []models.UnitRecord) string {
	if len(units) == 0 {
		return ""
	}
	parts := make([]string, 0, len(units))
	for _, u := range units {
		parts = append(parts, strings.Join([]string{u.Layout, u.Rent, u.FloorArea, u.Floor}, "|"))
	}
	return strings.Join(parts, "; ")
}

// TextWriter writes a line-oriented per-property report.
type TextWriter struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewTextWriter initialises the text report writer.
func NewTextWriter(filename string) (*TextWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create text file: %w", err)
	}

	return &TextWriter{file: f, writer: bufio.NewWriter(f)}, nil
}

// Write appends a block per property.
func (tw *TextWriter) Write(results []models.PropertyResult) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	for i := range results {
		r := &results[i]
		fmt.Fprintf(tw.writer, "物件名: %s\n", r.Name)
		fmt.Fprintf(tw.writer, "URL: %s\n", r.URL)
		fmt.Fprintf(tw.writer, "空室数: %d件\n", r.UnitCount)
		fmt.Fprintf(tw.writer, "状態: %s\n", r.Status)
		fmt.Fprintf(tw.writer, "電話番号: %s\n", r.Phone)
		fmt.Fprintf(tw.writer, "交通: %s\n", r.Transportation)
		fmt.Fprintf(tw.writer, "住所: %s\n", r.Address)
		fmt.Fprintf(tw.writer, "管理年数: %s\n", r.ManagementYears)
		if r.Error != "" {
			fmt.Fprintf(tw.writer, "エラー: %s\n", r.Error)
		}
		if len(r.Units) > 0 {
			fmt.Fprintln(tw.writer, "空室詳細:")
			for _, u := range r.Units {
				fmt.Fprintf(tw.writer, "  - 間取り: %s / 家賃: %s / 床面積: %s / 階: %s\n",
					u.Layout, u.Rent, u.FloorArea, u.Floor)
			}
		}
		fmt.Fprintln(tw.writer, strings.Repeat("-", 50))
		fmt.Fprintln(tw.writer)
	}

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("flush text writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (tw *TextWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("flush text writer: %w", err)
	}
	return tw.file.Close()
}

// Validate ensures the text report has data.
func (tw *TextWriter) Validate() error {
	info, err := tw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat text file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("text file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
