package orderfilter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/shipper-client/internal/model"
)

func ptr(s string) *string {
	return &s
}

func newTestReconciler(t *testing.T) *Reconciler {
	t.Helper()

	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		// Базы часовых поясов может не быть в минимальных образах.
		loc = time.FixedZone("ICT", 7*60*60)
	}
	return NewReconciler(loc, nil)
}

func mustRange(t *testing.T, from, to string) *DateRange {
	t.Helper()

	r, err := ParseDateRange(from, to)
	require.NoError(t, err)
	require.NotNil(t, r)
	return r
}

func ids(orders []model.Order) []int64 {
	res := make([]int64, 0, len(orders))
	for _, o := range orders {
		res = append(res, o.ID)
	}
	return res
}

func TestReconcile(t *testing.T) {
	rec := newTestReconciler(t)
	dr := mustRange(t, "2025-10-10", "2025-10-17")

	orders := []model.Order{
		{ID: 1, AcceptedAt: ptr("2025-10-10 00:00:00")},
		{ID: 2, AcceptedAt: ptr("2025-10-17 23:59:59")},
		{ID: 3, AcceptedAt: ptr("2025-10-18 00:00:01")},
		{ID: 4, AcceptedAt: ptr("2025-10-09 23:59:59")},
		{ID: 5, CreatedAt: ptr("2025-10-12 12:00:00")},
		{ID: 6},
		{ID: 7, AcceptedAt: ptr("not a date"), CreatedAt: ptr("2025-10-11 10:00:00")},
		{ID: 8, AcceptedAt: ptr("garbage")},
		{ID: 9, AcceptedAt: ptr("2025-10-20 08:00:00"), CreatedAt: ptr("2025-10-12 08:00:00")},
	}

	got := rec.Reconcile(orders, dr)
	assert.Equal(t, []int64{1, 2, 5, 7}, ids(got))
}

func TestReconcile_ZonedTimestampUsesFixedZoneDay(t *testing.T) {
	rec := newTestReconciler(t)
	dr := mustRange(t, "2025-10-17", "2025-10-17")

	// 18:30 UTC 16-го - это уже 17-е по Ханою (UTC+7).
	orders := []model.Order{
		{ID: 1, AcceptedAt: ptr("2025-10-16T18:30:00.000000Z")},
		{ID: 2, AcceptedAt: ptr("2025-10-16T16:00:00Z")},
	}

	got := rec.Reconcile(orders, dr)
	assert.Equal(t, []int64{1}, ids(got))
}

func TestReconcile_NoRangeIsPassthrough(t *testing.T) {
	rec := newTestReconciler(t)
	orders := []model.Order{{ID: 1}, {ID: 2, AcceptedAt: ptr("bad")}}

	got := rec.Reconcile(orders, nil)
	assert.Equal(t, orders, got)
}

func TestReconcile_MalformedRangeReturnsUnfiltered(t *testing.T) {
	rec := newTestReconciler(t)
	orders := []model.Order{{ID: 1}, {ID: 2}}

	dr := &DateRange{
		Start: Date{Year: 2025, Month: time.October, Day: 20},
		End:   Date{Year: 2025, Month: time.October, Day: 1},
	}

	got := rec.Reconcile(orders, dr)
	assert.Equal(t, orders, got)
}

func TestReconcile_Idempotent(t *testing.T) {
	rec := newTestReconciler(t)
	dr := mustRange(t, "2025-10-01", "2025-10-05")

	orders := []model.Order{
		{ID: 1, AcceptedAt: ptr("2025-10-01 07:00:00")},
		{ID: 2, CreatedAt: ptr("2025-10-06 07:00:00")},
		{ID: 3, CreatedAt: ptr("2025-10-05 07:00:00")},
		{ID: 4},
	}

	once := rec.Reconcile(orders, dr)
	twice := rec.Reconcile(once, dr)
	assert.Equal(t, once, twice)
}

func TestParseDateRange(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantNil bool
		wantErr bool
	}{
		{name: "no range", wantNil: true},
		{name: "valid", from: "2025-10-01", to: "2025-10-31"},
		{name: "single day", from: "2025-10-01", to: "2025-10-01"},
		{name: "missing end", from: "2025-10-01", wantErr: true},
		{name: "reversed", from: "2025-10-31", to: "2025-10-01", wantErr: true},
		{name: "bad format", from: "01/10/2025", to: "2025-10-31", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseDateRange(tt.from, tt.to)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidRange)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, r)
				return
			}
			require.NotNil(t, r)
			assert.Equal(t, tt.from, r.Start.String())
			assert.Equal(t, tt.to, r.End.String())
		})
	}
}

func TestPreset(t *testing.T) {
	loc := newTestReconciler(t).loc

	tests := []struct {
		name    string
		preset  string
		now     time.Time
		from    string
		to      string
		wantNil bool
		wantErr bool
	}{
		{
			name:   "today uses local day",
			preset: PresetToday,
			now:    time.Date(2025, time.October, 16, 20, 0, 0, 0, time.UTC),
			from:   "2025-10-17",
			to:     "2025-10-17",
		},
		{
			name:   "7 days crosses month",
			preset: PresetLast7Days,
			now:    time.Date(2025, time.March, 3, 9, 0, 0, 0, loc),
			from:   "2025-02-25",
			to:     "2025-03-03",
		},
		{
			name:   "7 days crosses leap february",
			preset: PresetLast7Days,
			now:    time.Date(2024, time.March, 2, 23, 59, 0, 0, loc),
			from:   "2024-02-25",
			to:     "2024-03-02",
		},
		{
			name:   "7 days crosses year",
			preset: PresetLast7Days,
			now:    time.Date(2026, time.January, 4, 0, 0, 0, 0, loc),
			from:   "2025-12-29",
			to:     "2026-01-04",
		},
		{
			name:   "month on the first day",
			preset: PresetThisMonth,
			now:    time.Date(2025, time.November, 1, 0, 30, 0, 0, loc),
			from:   "2025-11-01",
			to:     "2025-11-01",
		},
		{
			name:   "month from UTC evening is next local month",
			preset: PresetThisMonth,
			now:    time.Date(2025, time.October, 31, 18, 0, 0, 0, time.UTC),
			from:   "2025-11-01",
			to:     "2025-11-01",
		},
		{
			name:   "month mid month",
			preset: PresetThisMonth,
			now:    time.Date(2025, time.December, 31, 12, 0, 0, 0, loc),
			from:   "2025-12-01",
			to:     "2025-12-31",
		},
		{name: "all", preset: PresetAll, now: time.Now(), wantNil: true},
		{name: "unknown", preset: "year", now: time.Now(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Preset(tt.preset, tt.now, loc)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidRange)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, r)
				return
			}
			require.NotNil(t, r)
			assert.Equal(t, tt.from, r.Start.String())
			assert.Equal(t, tt.to, r.End.String())
		})
	}
}

func TestReconcilerRange(t *testing.T) {
	rec := newTestReconciler(t)
	now := time.Date(2025, time.October, 16, 20, 0, 0, 0, time.UTC)

	r, err := rec.Range("today", "", "", now)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "2025-10-17", r.Start.String())

	r, err = rec.Range("", "2025-10-01", "2025-10-05", now)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "2025-10-05", r.End.String())

	r, err = rec.Range("all", "", "", now)
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = rec.Range("7d", "2025-10-01", "", now)
	assert.ErrorIs(t, err, ErrInvalidRange)
}
