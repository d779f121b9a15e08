package aggregate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/speedhist/internal/history/store"
	"github.com/xtxerr/speedhist/internal/history/types"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRunRollsRawIntoMinuteBuckets(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	// Two raw samples in the same minute, two days old.
	t0 := now.Add(-48 * time.Hour).Truncate(time.Minute).Unix()
	err := st.InsertSamples(ctx, []types.Sample{
		{Timestamp: t0 + 1, Interface: "Wi-Fi", Upload: 100, Download: 200},
		{Timestamp: t0 + 2, Interface: "Wi-Fi", Upload: 300, Download: 400},
	})
	if err != nil {
		t.Fatalf("insert samples: %v", err)
	}

	res, err := Run(ctx, st, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.RawRowsDeleted != 2 {
		t.Errorf("raw rows deleted = %d, want 2", res.RawRowsDeleted)
	}

	records, err := st.QueryRange(ctx, t0, t0+60, nil)
	if err != nil {
		t.Fatalf("query range: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 minute row", len(records))
	}

	rec := records[0]
	if rec.Resolution != types.ResolutionMinute {
		t.Errorf("resolution = %v, want minute", rec.Resolution)
	}
	if rec.Timestamp != t0 {
		t.Errorf("timestamp = %d, want bucket start %d", rec.Timestamp, t0)
	}
	if rec.Upload != 200 || rec.Download != 300 {
		t.Errorf("averages = %v/%v, want 200/300", rec.Upload, rec.Download)
	}
	if rec.UploadMax != 300 || rec.DownloadMax != 400 {
		t.Errorf("maxima = %v/%v, want 300/400", rec.UploadMax, rec.DownloadMax)
	}
}

func TestRunLeavesFreshRowsAlone(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	fresh := now.Add(-time.Hour).Unix()
	err := st.InsertSamples(ctx, []types.Sample{
		{Timestamp: fresh, Interface: "eth0", Upload: 50, Download: 60},
	})
	if err != nil {
		t.Fatalf("insert samples: %v", err)
	}

	res, err := Run(ctx, st, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.RawRowsDeleted != 0 || res.MinuteRowsDeleted != 0 {
		t.Errorf("rollup touched fresh rows: %+v", res)
	}

	records, err := st.QueryRange(ctx, fresh, fresh+1, nil)
	if err != nil {
		t.Fatalf("query range: %v", err)
	}
	if len(records) != 1 || records[0].Resolution != types.ResolutionRaw {
		t.Errorf("fresh row missing or demoted: %+v", records)
	}
}

func TestRunKeepsInterfacesSeparate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	t0 := now.Add(-48 * time.Hour).Truncate(time.Minute).Unix()
	err := st.InsertSamples(ctx, []types.Sample{
		{Timestamp: t0 + 1, Interface: "eth0", Upload: 10, Download: 10},
		{Timestamp: t0 + 1, Interface: "wlan0", Upload: 90, Download: 90},
	})
	if err != nil {
		t.Fatalf("insert samples: %v", err)
	}

	if _, err := Run(ctx, st, now); err != nil {
		t.Fatalf("run: %v", err)
	}

	records, err := st.QueryRange(ctx, t0, t0+60, nil)
	if err != nil {
		t.Fatalf("query range: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d minute rows, want one per interface", len(records))
	}
	for _, rec := range records {
		switch rec.Interface {
		case "eth0":
			if rec.Upload != 10 {
				t.Errorf("eth0 average = %v, want 10", rec.Upload)
			}
		case "wlan0":
			if rec.Upload != 90 {
				t.Errorf("wlan0 average = %v, want 90", rec.Upload)
			}
		default:
			t.Errorf("unexpected interface %q", rec.Interface)
		}
	}
}

func TestRunRollsMinuteIntoHourBuckets(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	// Two minute rows in the same hour, 31 days old.
	h0 := now.Add(-31 * 24 * time.Hour).Truncate(time.Hour).Unix()
	for i, row := range []struct{ avg, max float64 }{{100, 150}, {200, 250}} {
		_, err := st.DB().ExecContext(ctx, `
			INSERT INTO speed_history_minute
				(timestamp, interface_name, upload_avg, download_avg, upload_max, download_max)
			VALUES (?, ?, ?, ?, ?, ?)`,
			h0+int64(i)*60, "eth0", row.avg, row.avg, row.max, row.max)
		if err != nil {
			t.Fatalf("seed minute row: %v", err)
		}
	}

	res, err := Run(ctx, st, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.MinuteRowsDeleted != 2 {
		t.Errorf("minute rows deleted = %d, want 2", res.MinuteRowsDeleted)
	}

	records, err := st.QueryRange(ctx, h0, h0+3600, nil)
	if err != nil {
		t.Fatalf("query range: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 hour row", len(records))
	}

	rec := records[0]
	if rec.Resolution != types.ResolutionHour {
		t.Errorf("resolution = %v, want hour", rec.Resolution)
	}
	if rec.Timestamp != h0 {
		t.Errorf("timestamp = %d, want bucket start %d", rec.Timestamp, h0)
	}
	if rec.Upload != 150 {
		t.Errorf("hour average = %v, want 150", rec.Upload)
	}
	if rec.UploadMax != 250 {
		t.Errorf("hour max = %v, want 250 (max of minute maxima)", rec.UploadMax)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	t0 := now.Add(-48 * time.Hour).Truncate(time.Minute).Unix()
	err := st.InsertSamples(ctx, []types.Sample{
		{Timestamp: t0 + 1, Interface: "eth0", Upload: 100, Download: 100},
	})
	if err != nil {
		t.Fatalf("insert samples: %v", err)
	}

	if _, err := Run(ctx, st, now); err != nil {
		t.Fatalf("first run: %v", err)
	}
	res, err := Run(ctx, st, now)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.RawRowsDeleted != 0 || res.MinuteRowsDeleted != 0 {
		t.Errorf("second run was not a no-op: %+v", res)
	}

	records, err := st.QueryRange(ctx, t0, t0+60, nil)
	if err != nil {
		t.Fatalf("query range: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records after repeat run, want 1", len(records))
	}
}
