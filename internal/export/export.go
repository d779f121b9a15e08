// Package export writes history rows out to interchange formats: CSV for
// spreadsheets and Parquet for columnar tooling.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/speedhist/internal/history/types"
)

// csvHeader is the fixed CSV column set.
var csvHeader = []string{
	"timestamp", "interface", "resolution",
	"upload_bytes_sec", "download_bytes_sec",
	"upload_max_bytes_sec", "download_max_bytes_sec",
}

// CSV writes records to w with a header row.
func CSV(w io.Writer, records []types.SpeedRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for i := range records {
		rec := &records[i]
		row := []string{
			strconv.FormatInt(rec.Timestamp, 10),
			rec.Interface,
			rec.Resolution.String(),
			strconv.FormatFloat(rec.Upload, 'f', -1, 64),
			strconv.FormatFloat(rec.Download, 'f', -1, 64),
			strconv.FormatFloat(rec.UploadMax, 'f', -1, 64),
			strconv.FormatFloat(rec.DownloadMax, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// parquetRow is the Parquet shape of one history record.
type parquetRow struct {
	Timestamp   int64   `parquet:"timestamp"`
	Interface   string  `parquet:"interface,zstd"`
	Resolution  string  `parquet:"resolution,zstd"`
	Upload      float64 `parquet:"upload_bytes_sec"`
	Download    float64 `parquet:"download_bytes_sec"`
	UploadMax   float64 `parquet:"upload_max_bytes_sec"`
	DownloadMax float64 `parquet:"download_max_bytes_sec"`
}

// Parquet writes records to a Parquet file at path, creating parent
// directories as needed.
func Parquet(path string, records []types.SpeedRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	writer := parquet.NewGenericWriter[parquetRow](f,
		parquet.Compression(&parquet.Zstd))

	rows := make([]parquetRow, len(records))
	for i := range records {
		rec := &records[i]
		rows[i] = parquetRow{
			Timestamp:   rec.Timestamp,
			Interface:   rec.Interface,
			Resolution:  rec.Resolution.String(),
			Upload:      rec.Upload,
			Download:    rec.Download,
			UploadMax:   rec.UploadMax,
			DownloadMax: rec.DownloadMax,
		}
	}

	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// ToFile dispatches on the file extension: ".csv" or ".parquet".
func ToFile(path string, records []types.SpeedRecord) error {
	switch filepath.Ext(path) {
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create file: %w", err)
		}
		defer f.Close()
		return CSV(f, records)
	case ".parquet":
		return Parquet(path, records)
	default:
		return fmt.Errorf("unsupported export format %q (want .csv or .parquet)", filepath.Ext(path))
	}
}
