package export

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/speedhist/internal/history/types"
)

func sampleRecords() []types.SpeedRecord {
	return []types.SpeedRecord{
		{
			Timestamp: 1000, Interface: "eth0",
			Upload: 100.5, Download: 200.25,
			UploadMax: 100.5, DownloadMax: 200.25,
			Resolution: types.ResolutionRaw,
		},
		{
			Timestamp: 2000, Interface: "wlan0",
			Upload: 50, Download: 75,
			UploadMax: 90, DownloadMax: 120,
			Resolution: types.ResolutionMinute,
		},
	}
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := CSV(&buf, sampleRecords()); err != nil {
		t.Fatalf("csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][2] != "resolution" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "eth0" || rows[1][2] != "raw" || rows[1][3] != "100.5" {
		t.Errorf("first row = %v", rows[1])
	}
	if rows[2][1] != "wlan0" || rows[2][2] != "minute" || rows[2][5] != "90" {
		t.Errorf("second row = %v", rows[2])
	}
}

func TestCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := CSV(&buf, nil); err != nil {
		t.Fatalf("csv: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, want header only", len(rows))
	}
}

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.parquet")
	if err := Parquet(path, sampleRecords()); err != nil {
		t.Fatalf("parquet: %v", err)
	}

	rows, err := parquet.ReadFile[parquetRow](path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Interface != "eth0" || rows[0].Upload != 100.5 {
		t.Errorf("first row = %+v", rows[0])
	}
	if rows[1].Resolution != "minute" || rows[1].UploadMax != 90 {
		t.Errorf("second row = %+v", rows[1])
	}
}

func TestParquetEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	if err := Parquet(path, nil); err != nil {
		t.Fatalf("parquet: %v", err)
	}
	rows, err := parquet.ReadFile[parquetRow](path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rows = %d, want 0", len(rows))
	}
}

func TestToFileDispatch(t *testing.T) {
	dir := t.TempDir()

	if err := ToFile(filepath.Join(dir, "out.csv"), sampleRecords()); err != nil {
		t.Errorf("csv dispatch: %v", err)
	}
	if err := ToFile(filepath.Join(dir, "out.parquet"), sampleRecords()); err != nil {
		t.Errorf("parquet dispatch: %v", err)
	}
	if err := ToFile(filepath.Join(dir, "out.json"), sampleRecords()); err == nil {
		t.Error("unsupported extension accepted")
	}
}
