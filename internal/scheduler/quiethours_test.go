package scheduler

import (
	"errors"
	"testing"
	"time"

	"remindpoint/internal/config"
	"remindpoint/internal/types"
)

func TestInQuietHours_OvernightRange(t *testing.T) {
	cfg := config.QuietHoursConfig{StartHour: 22, EndHour: 5, Timezone: "UTC"}

	cases := []struct {
		hour int
		want bool
	}{
		{21, false},
		{22, true},
		{23, true},
		{0, true},
		{4, true},
		{5, false},
		{12, false},
	}

	for _, tc := range cases {
		now := time.Date(2026, 3, 10, tc.hour, 30, 0, 0, time.UTC)
		got, err := inQuietHours(cfg, now)
		if err != nil {
			t.Fatalf("hour %d: unexpected error: %v", tc.hour, err)
		}
		if got != tc.want {
			t.Errorf("hour %d: quiet = %v, want %v", tc.hour, got, tc.want)
		}
	}
}

func TestInQuietHours_SameDayRange(t *testing.T) {
	cfg := config.QuietHoursConfig{StartHour: 9, EndHour: 17, Timezone: "UTC"}

	quiet, err := inQuietHours(cfg, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if !quiet {
		t.Error("12:00 inside [9,17) must be quiet")
	}

	quiet, err = inQuietHours(cfg, time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if quiet {
		t.Error("17:00 is exclusive end, must not be quiet")
	}
}

func TestInQuietHours_StartEqualsEndDisables(t *testing.T) {
	cfg := config.QuietHoursConfig{StartHour: 8, EndHour: 8, Timezone: "UTC"}

	for hour := 0; hour < 24; hour++ {
		quiet, err := inQuietHours(cfg, time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatal(err)
		}
		if quiet {
			t.Fatalf("hour %d: start==end must disable quiet hours", hour)
		}
	}
}

func TestInQuietHours_TenantTimezone(t *testing.T) {
	cfg := config.QuietHoursConfig{StartHour: 22, EndHour: 5, Timezone: "America/New_York"}

	// 03:00 UTC is 22:00 or 23:00 in New York depending on DST; either way
	// it is inside the overnight quiet range.
	quiet, err := inQuietHours(cfg, time.Date(2026, 3, 20, 3, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if !quiet {
		t.Error("03:00 UTC must be quiet in America/New_York")
	}

	// 16:00 UTC is late morning in New York.
	quiet, err = inQuietHours(cfg, time.Date(2026, 3, 20, 16, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if quiet {
		t.Error("16:00 UTC must not be quiet in America/New_York")
	}
}

func TestInQuietHours_InvalidConfig(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		cfg  config.QuietHoursConfig
	}{
		{"start hour 24", config.QuietHoursConfig{StartHour: 24, EndHour: 5, Timezone: "UTC"}},
		{"negative end hour", config.QuietHoursConfig{StartHour: 22, EndHour: -1, Timezone: "UTC"}},
		{"unknown timezone", config.QuietHoursConfig{StartHour: 22, EndHour: 5, Timezone: "Mars/Olympus"}},
	}
	for _, tc := range cases {
		_, err := inQuietHours(tc.cfg, now)
		if err == nil {
			t.Errorf("%s must be rejected", tc.name)
			continue
		}
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodePreconditionConfig {
			t.Errorf("%s: error = %v, want code %s", tc.name, err, types.ErrCodePreconditionConfig)
		}
	}
}
