package export

import (
	"fmt"
	"sync"

	"github.com/tmaeda/urwatch/models"
)

// DualWriter outputs to both CSV and text formats simultaneously.
type DualWriter struct {
	csvWriter  *CSVWriter
	textWriter *TextWriter
	mu         sync.Mutex
}

// NewDualWriter creates a dual writer for both report formats.
func NewDualWriter(csvFilename, textFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	textWriter, err := NewTextWriter(textFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create text writer: %w", err)
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		textWriter: textWriter,
	}, nil
}

// Write writes results to both formats.
func (dw *DualWriter) Write(results []models.PropertyResult) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Write(results); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}
	if err := dw.textWriter.Write(results); err != nil {
		return fmt.Errorf("text write failed: %w", err)
	}
	return nil
}

// Close closes both underlying writers, reporting the first failure.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	csvErr := dw.csvWriter.Close()
	textErr := dw.textWriter.Close()
	if csvErr != nil {
		return fmt.Errorf("CSV close failed: %w", csvErr)
	}
	if textErr != nil {
		return fmt.Errorf("text close failed: %w", textErr)
	}
	return nil
}

// Validate checks both outputs have content.
func (dw *DualWriter) Validate() error {
	if err := dw.csvWriter.Validate(); err != nil {
		return err
	}
	return dw.textWriter.Validate()
}
