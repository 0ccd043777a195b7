package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wesm/coursesync/internal/db"
)

func TestTotalsOf(t *testing.T) {
	tests := []struct {
		name string
		rows []db.DownloadProgress
		want Totals
	}{
		{"no rows", nil, Totals{}},
		{
			"mixed",
			[]db.DownloadProgress{
				{EntryID: "courses/1", BytesToDownload: 2000, BytesDownloaded: 1500},
				{EntryID: "courses/2", BytesToDownload: 100, BytesDownloaded: 100},
				{EntryID: "courses/3"},
			},
			Totals{
				Courses: 3, CoursesDone: 2,
				BytesToDownload: 2100, BytesDownloaded: 1600,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TotalsOf(tt.rows))
		})
	}
}

func TestTotals_Percent(t *testing.T) {
	tests := []struct {
		name string
		t    Totals
		want float64
	}{
		{
			name: "zero total",
			t:    Totals{},
			want: 0,
		},
		{
			name: "three quarters",
			t:    Totals{BytesToDownload: 2000, BytesDownloaded: 1500},
			want: 75,
		},
		{
			name: "all done",
			t:    Totals{BytesToDownload: 4, BytesDownloaded: 4},
			want: 100,
		},
		{
			name: "one third",
			t:    Totals{BytesToDownload: 3, BytesDownloaded: 1},
			want: 33.333333,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.t.Percent()
			assert.InDelta(t, tt.want, got, 1e-4)
		})
	}
}
