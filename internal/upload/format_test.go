package upload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSizeMB(t *testing.T) {
	assert.Equal(t, "0.00 MB", FormatSizeMB(0))
	assert.Equal(t, "1.00 MB", FormatSizeMB(1<<20))
	assert.Equal(t, "52.43 MB", FormatSizeMB(54_976_593))
	assert.Equal(t, "1024.00 MB", FormatSizeMB(1<<30))
}

func TestFormatAirtime(t *testing.T) {
	now := time.Date(2026, 7, 4, 19, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		whenISO string
		want    string
		wantErr bool
	}{
		{"standard time", "2026-03-07T21:15:00.000Z", "Mar 7, 2026, 1:15 PM", false},
		{"daylight time", "2026-03-14T13:00:00.000Z", "Mar 14, 2026, 6:00 AM", false},
		{"offset input", "2026-12-01T09:00:00+01:00", "Dec 1, 2026, 12:00 AM", false},
		{"empty uses now", "", "Jul 4, 2026, 12:30 PM", false},
		{"date only", "2026-03-14", "Mar 13, 2026, 5:00 PM", false},
		{"no offset", "2026-03-14T13:00", "Mar 14, 2026, 6:00 AM", false},
		{"no offset with seconds", "2026-03-14T13:00:30.250", "Mar 14, 2026, 6:00 AM", false},
		{"garbage", "soon", "", true},
		{"impossible date", "2026-02-30", "", true},
		{"slashes", "03/14/2026", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatAirtime(tt.whenISO, now, Airtime)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
