package subscription

import (
	"testing"
	"time"

	"github.com/HenrikVollan/KakaoBoks/app/models"
)

func TestNextFromSchedule(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		frequency string
		want      time.Time
	}{
		{frequency: models.FrequencyWeekly, want: time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)},
		{frequency: models.FrequencyBiweekly, want: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)},
		{frequency: models.FrequencyMonthly, want: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		if got := NextFromSchedule(tt.frequency, anchor); !got.Equal(tt.want) {
			t.Fatalf("NextFromSchedule(%s) = %v, want %v", tt.frequency, got, tt.want)
		}
	}
}

func TestNextFromSchedule_NoDrift(t *testing.T) {
	// Repeated advancement from each scheduled date stays on the grid no
	// matter when the charges actually land.
	anchor := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	next := anchor
	for i := 0; i < 12; i++ {
		next = NextFromSchedule(models.FrequencyMonthly, next)
	}
	want := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("12 monthly advances = %v, want %v", next, want)
	}
}

func TestNextFromSchedule_MonthEndNormalization(t *testing.T) {
	// time.AddDate normalizes Jan 31 + 1 month to Mar 2 (Feb has 29 days in 2024).
	anchor := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	got := NextFromSchedule(models.FrequencyMonthly, anchor)
	want := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("month-end advance = %v, want %v", got, want)
	}
}
