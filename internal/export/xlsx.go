// Package export renders consolidated extraction results as XLSX workbooks.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/pagelift/pagelift/internal/extract"
)

const (
	recordsSheet = "Records"
	chunksSheet  = "Chunks"
	runSheet     = "Run"
)

// Exporter produces XLSX workbooks from aggregate results.
type Exporter struct {
	logger *zap.Logger
}

// New creates an Exporter.
func New(logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{logger: logger}
}

// XLSX renders the aggregate as a three-sheet workbook: one row per
// extracted record, one row per chunk summary, and a run overview.
func (e *Exporter) XLSX(result extract.AggregateResult) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return nil, fmt.Errorf("rename records sheet: %w", err)
	}
	if _, err := f.NewSheet(chunksSheet); err != nil {
		return nil, fmt.Errorf("create chunks sheet: %w", err)
	}
	if _, err := f.NewSheet(runSheet); err != nil {
		return nil, fmt.Errorf("create run sheet: %w", err)
	}

	if err := writeRecordsSheet(f, result.Records); err != nil {
		return nil, err
	}
	if err := writeChunksSheet(f, result.PerChunkSummary); err != nil {
		return nil, err
	}
	if err := writeRunSheet(f, result); err != nil {
		return nil, err
	}

	if index, err := f.GetSheetIndex(recordsSheet); err == nil {
		f.SetActiveSheet(index)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	e.logger.Info("aggregate exported",
		zap.String("run_id", result.RunID),
		zap.Int("records", result.TotalRecords),
		zap.Int("chunks", len(result.PerChunkSummary)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return buf.Bytes(), nil
}

// WriteFile renders the workbook and writes it to path, atomically
// replacing any previous file.
func (e *Exporter) WriteFile(result extract.AggregateResult, path string) error {
	data, err := e.XLSX(result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}

func writeRecordsSheet(f *excelize.File, records []extract.Record) error {
	headers := []string{"Name", "Relation Name", "Address", "Age", "Gender", "Identifier"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("records header cell: %w", err)
		}
		if err := f.SetCellValue(recordsSheet, cell, h); err != nil {
			return fmt.Errorf("records header: %w", err)
		}
	}

	for i, record := range records {
		row := i + 2
		values := []any{
			record.Name,
			record.RelationName,
			record.Address,
			record.Age,
			record.Gender,
			record.Identifier,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("records cell: %w", err)
			}
			if err := f.SetCellValue(recordsSheet, cell, v); err != nil {
				return fmt.Errorf("records row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(recordsSheet, "A", "B", 28)
	_ = f.SetColWidth(recordsSheet, "C", "C", 48)
	_ = f.SetColWidth(recordsSheet, "D", "E", 10)
	_ = f.SetColWidth(recordsSheet, "F", "F", 20)
	return nil
}

func writeChunksSheet(f *excelize.File, summaries []extract.ChunkSummary) error {
	headers := []string{"Chunk ID", "Pages", "Status", "Records", "Attempts"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("chunks header cell: %w", err)
		}
		if err := f.SetCellValue(chunksSheet, cell, h); err != nil {
			return fmt.Errorf("chunks header: %w", err)
		}
	}

	for i, summary := range summaries {
		row := i + 2
		values := []any{
			summary.ChunkID,
			summary.PageLabel,
			string(summary.Status),
			summary.RecordCount,
			summary.Attempts,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("chunks cell: %w", err)
			}
			if err := f.SetCellValue(chunksSheet, cell, v); err != nil {
				return fmt.Errorf("chunks row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(chunksSheet, "A", "A", 42)
	_ = f.SetColWidth(chunksSheet, "B", "B", 14)
	_ = f.SetColWidth(chunksSheet, "C", "E", 10)
	return nil
}

func writeRunSheet(f *excelize.File, result extract.AggregateResult) error {
	succeeded := 0
	for _, summary := range result.PerChunkSummary {
		if summary.Status == extract.ChunkStatusSuccess {
			succeeded++
		}
	}

	rows := [][2]any{
		{"Source Document", result.SourceDocument},
		{"Run ID", result.RunID},
		{"Timestamp", result.Timestamp.Format(time.RFC3339)},
		{"Total Records", result.TotalRecords},
		{"Chunks", len(result.PerChunkSummary)},
		{"Chunks Succeeded", succeeded},
		{"Chunks Failed", len(result.PerChunkSummary) - succeeded},
	}
	for i, pair := range rows {
		row := i + 1
		keyCell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return fmt.Errorf("run key cell: %w", err)
		}
		if err := f.SetCellValue(runSheet, keyCell, pair[0]); err != nil {
			return fmt.Errorf("run sheet key: %w", err)
		}
		valueCell, err := excelize.CoordinatesToCellName(2, row)
		if err != nil {
			return fmt.Errorf("run value cell: %w", err)
		}
		if err := f.SetCellValue(runSheet, valueCell, pair[1]); err != nil {
			return fmt.Errorf("run sheet value: %w", err)
		}
	}

	_ = f.SetColWidth(runSheet, "A", "A", 20)
	_ = f.SetColWidth(runSheet, "B", "B", 60)
	return nil
}
