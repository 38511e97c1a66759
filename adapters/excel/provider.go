package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"iaicore/domain/core"
	"iaicore/domain/dataset"
)

// Provider loads historical outcome records from an .xlsx or .csv file.
// The sheet needs a header row with a "payoff" column; an optional
// "timestamp" column (RFC3339) is carried through, and every other numeric
// column becomes a feature the evaluator's bound parameters can filter on.
type Provider struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
}

// NewProvider creates a provider for the given file, picking the format
// from the extension.
func NewProvider(filePath string) *Provider {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	return &Provider{filePath: filePath, fileType: fileType, sheet: "Sheet1"}
}

// Load reads the whole file into a dataset.
func (p *Provider) Load(ctx context.Context) (dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return dataset.Dataset{}, err
	}
	if _, err := os.Stat(p.filePath); os.IsNotExist(err) {
		return dataset.Dataset{}, fmt.Errorf("dataset file not found: %s", p.filePath)
	}

	var rows [][]string
	var err error
	switch p.fileType {
	case "csv":
		rows, err = p.readCSV()
	default:
		rows, err = p.readExcel()
	}
	if err != nil {
		return dataset.Dataset{}, err
	}
	if len(rows) < 2 {
		return dataset.Dataset{}, fmt.Errorf("dataset %s needs a header row and at least one data row", p.filePath)
	}

	return p.buildDataset(rows)
}

func (p *Provider) readExcel() ([][]string, error) {
	f, err := excelize.OpenFile(p.filePath)
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(p.sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.sheet, err)
	}
	return rows, nil
}

func (p *Provider) readCSV() ([][]string, error) {
	f, err := os.Open(p.filePath)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

func (p *Provider) buildDataset(rows [][]string) (dataset.Dataset, error) {
	header := rows[0]
	payoffCol := -1
	timestampCol := -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "payoff", "outcome":
			payoffCol = i
		case "timestamp", "time", "date":
			timestampCol = i
		}
	}
	if payoffCol < 0 {
		return dataset.Dataset{}, fmt.Errorf("dataset %s has no payoff column", p.filePath)
	}

	records := make([]dataset.Record, 0, len(rows)-1)
	for rowIdx, row := range rows[1:] {
		if len(row) <= payoffCol {
			continue // short row, no payoff cell
		}
		payoff, err := strconv.ParseFloat(strings.TrimSpace(row[payoffCol]), 64)
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("row %d: bad payoff %q", rowIdx+2, row[payoffCol])
		}

		record := dataset.Record{
			Features: make(map[string]float64),
			Payoff:   payoff,
		}
		for col, cell := range row {
			if col == payoffCol || col >= len(header) {
				continue
			}
			if col == timestampCol {
				if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(cell)); err == nil {
					record.Timestamp = core.NewTimestamp(ts)
				}
				continue
			}
			if v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
				record.Features[strings.ToLower(strings.TrimSpace(header[col]))] = v
			}
		}
		records = append(records, record)
	}

	name := strings.TrimSuffix(filepath.Base(p.filePath), filepath.Ext(p.filePath))
	return dataset.Dataset{Name: name, Records: records}, nil
}
