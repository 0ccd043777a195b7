package sync

import "github.com/wesm/coursesync/internal/db"

// Totals sums the byte rollups of every course in a run.
type Totals struct {
	Courses         int   `json:"courses"`
	CoursesDone     int   `json:"courses_done"`
	BytesToDownload int64 `json:"bytes_to_download"`
	BytesDownloaded int64 `json:"bytes_downloaded"`
}

// TotalsOf adds up rows. A course counts as done when all of
// its selected bytes are downloaded.
func TotalsOf(rows []db.DownloadProgress) Totals {
	var t Totals
	for _, r := range rows {
		t.Courses++
		t.BytesToDownload += r.BytesToDownload
		t.BytesDownloaded += r.BytesDownloaded
		if r.BytesDownloaded >= r.BytesToDownload {
			t.CoursesDone++
		}
	}
	return t
}

// Percent returns the byte progress as a percentage (0–100).
func (t Totals) Percent() float64 {
	if t.BytesToDownload == 0 {
		return 0
	}
	return float64(t.BytesDownloaded) /
		float64(t.BytesToDownload) * 100
}
