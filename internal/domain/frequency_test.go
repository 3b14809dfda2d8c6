package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/domain/model"
)

func TestNextRun(t *testing.T) {
	base := time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		freq model.Frequency
		now  time.Time
		want time.Time
	}{
		{name: "always", freq: model.FrequencyAlways, now: base, want: base},
		{name: "daily", freq: model.FrequencyDaily, now: base, want: base.AddDate(0, 0, 1)},
		{name: "weekly", freq: model.FrequencyWeekly, now: base, want: base.AddDate(0, 0, 7)},
		{name: "biweekly", freq: model.FrequencyBiweekly, now: base, want: base.AddDate(0, 0, 14)},
		{
			name: "monthly january adds 31",
			freq: model.FrequencyMonthly,
			now:  base,
			want: time.Date(2024, time.February, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name: "monthly april adds 30",
			freq: model.FrequencyMonthly,
			now:  time.Date(2023, time.April, 30, 0, 0, 0, 0, time.UTC),
			want: time.Date(2023, time.May, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly leap february adds 29",
			freq: model.FrequencyMonthly,
			now:  time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly february adds 28",
			freq: model.FrequencyMonthly,
			now:  time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly century february is not leap",
			freq: model.FrequencyMonthly,
			now:  time.Date(2100, time.February, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2100, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly january 31 does not keep day of month",
			freq: model.FrequencyMonthly,
			now:  time.Date(2023, time.January, 31, 0, 0, 0, 0, time.UTC),
			want: time.Date(2023, time.March, 3, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := domain.NextRun(tt.freq, tt.now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestNextRunMonthlyTable(t *testing.T) {
	want := map[time.Month]int{
		time.January: 31, time.February: 28, time.March: 31, time.April: 30,
		time.May: 31, time.June: 30, time.July: 31, time.August: 31,
		time.September: 30, time.October: 31, time.November: 30, time.December: 31,
	}
	for month, days := range want {
		now := time.Date(2023, month, 1, 0, 0, 0, 0, time.UTC)
		got, err := domain.NextRun(model.FrequencyMonthly, now)
		require.NoError(t, err)
		assert.Equal(t, time.Duration(days)*24*time.Hour, got.Sub(now), "month %s", month)
	}
}

func TestNextRunInvalid(t *testing.T) {
	now := time.Now()

	_, err := domain.NextRun(model.FrequencyManual, now)
	require.ErrorIs(t, err, domain.ErrInvalidFrequency)

	_, err = domain.NextRun(model.Frequency("HOURLY"), now)
	require.ErrorIs(t, err, domain.ErrInvalidFrequency)

	_, err = domain.NextRun("", now)
	require.ErrorIs(t, err, domain.ErrInvalidFrequency)
}
