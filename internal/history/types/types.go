package types

import "time"

// Speed holds one interface's throughput reading in bytes per second.
type Speed struct {
	Upload   float64
	Download float64
}

// Negligible reports whether both rates are below the given threshold.
// Negligible speeds stay in the live window but are never persisted.
func (s Speed) Negligible(threshold float64) bool {
	return s.Upload < threshold && s.Download < threshold
}

// Sample represents a single per-interface throughput reading at native
// polling resolution. This is the primary data unit flowing into the store.
type Sample struct {
	Timestamp int64  // Unix seconds
	Interface string // e.g. "Wi-Fi", "eth0"
	Upload    float64
	Download  float64
}

// TimestampTime returns the timestamp as a time.Time.
func (s *Sample) TimestampTime() time.Time {
	return time.Unix(s.Timestamp, 0)
}

// Key returns a unique identifier for this sample's series point.
func (s *Sample) Key() string {
	return s.Interface + "@" + s.TimestampTime().UTC().Format(time.RFC3339)
}

// SpeedSnapshot is one live-window entry: the speeds of all interfaces at a
// single instant, including negligible ones.
type SpeedSnapshot struct {
	Timestamp int64
	Speeds    map[string]Speed
}

// Total returns the summed upload and download rates across interfaces.
func (s SpeedSnapshot) Total() (upload, download float64) {
	for _, sp := range s.Speeds {
		upload += sp.Upload
		download += sp.Download
	}
	return upload, download
}

// SummaryRow is one minute or hour aggregate row.
type SummaryRow struct {
	Timestamp   int64 // bucket-aligned Unix seconds
	Interface   string
	UploadAvg   float64
	DownloadAvg float64
	UploadMax   float64
	DownloadMax float64
}

// Resolution identifies which history table a record came from.
type Resolution int

const (
	// ResolutionRaw is native per-sample resolution (newest ~24h).
	ResolutionRaw Resolution = iota
	// ResolutionMinute is per-minute aggregate resolution (~24h-30d old).
	ResolutionMinute
	// ResolutionHour is per-hour aggregate resolution (older data).
	ResolutionHour
)

// String returns a human-readable representation of the Resolution.
func (r Resolution) String() string {
	switch r {
	case ResolutionRaw:
		return "raw"
	case ResolutionMinute:
		return "minute"
	case ResolutionHour:
		return "hour"
	default:
		return "unknown"
	}
}

// SpeedRecord is one row returned from a range read, drawn from any of the
// three history tables. For raw rows Upload/UploadMax (and the download pair)
// carry the same value.
type SpeedRecord struct {
	Timestamp   int64
	Interface   string
	Upload      float64
	Download    float64
	UploadMax   float64
	DownloadMax float64
	Resolution  Resolution
}

// TimestampTime returns the timestamp as a time.Time.
func (r *SpeedRecord) TimestampTime() time.Time {
	return time.Unix(r.Timestamp, 0)
}
