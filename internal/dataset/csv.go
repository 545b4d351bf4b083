// Package dataset provides the transaction sources a mining run can be trained on.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/mining"
)

// DefaultLabelColumn is the multi-label column of the NIH chest X-ray metadata.
const DefaultLabelColumn = "Finding Labels"

// CSVSource reads transactions from a CSV file with a header row.
type CSVSource struct {
	path        string
	labelColumn string
	delimiter   string
	noFinding   string
}

// NewCSVSource creates a source for path. Empty settings take the NIH defaults.
func NewCSVSource(path, labelColumn, delimiter, noFinding string) *CSVSource {
	if labelColumn == "" {
		labelColumn = DefaultLabelColumn
	}
	if delimiter == "" {
		delimiter = mining.DefaultDelimiter
	}
	if noFinding == "" {
		noFinding = mining.DefaultNoFindingLabel
	}
	return &CSVSource{path: path, labelColumn: labelColumn, delimiter: delimiter, noFinding: noFinding}
}

// Name implements domain.TransactionSource.
func (s *CSVSource) Name() string {
	return "csv:" + s.path
}

// Transactions implements domain.TransactionSource.
func (s *CSVSource) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", s.path, err)
	}
	defer f.Close()

	return s.read(ctx, f)
}

func (s *CSVSource) read(ctx context.Context, r io.Reader) ([]domain.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.NewDataError("csv", "dataset has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("reading dataset header: %w", err)
	}

	column := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == s.labelColumn {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, domain.NewDataError("label_column", fmt.Sprintf("column %q not found in dataset header", s.labelColumn))
	}

	var transactions []domain.Transaction
	for line := 2; ; line++ {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading dataset line %d: %w", line, err)
		}
		field := ""
		if column < len(record) {
			field = record[column]
		}
		transactions = append(transactions, mining.ParseTransaction(field, s.delimiter, s.noFinding))
	}
	return transactions, nil
}
