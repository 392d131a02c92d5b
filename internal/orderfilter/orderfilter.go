// Package orderfilter перепроверяет даты заказов, полученных от бэкенда,
// потому что фильтр по датам на сервере не считается надёжным.
package orderfilter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/shipper-client/internal/model"
)

// APIDateLayout - формат дат в параметрах start_date/end_date.
const APIDateLayout = "2006-01-02"

// DefaultTimezone - часовой пояс, в котором сравниваются календарные дни.
const DefaultTimezone = "Asia/Ho_Chi_Minh"

// Форматы дат, которые встречаются в ответах бэкенда.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	APIDateLayout,
}

// ErrInvalidRange возвращается для некорректного диапазона дат.
var ErrInvalidRange = errors.New("invalid date range")

// Date - календарный день без времени.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf возвращает календарный день момента t в часовом поясе loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate разбирает дату в формате yyyy-MM-dd.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(APIDateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}, nil
}

// String форматирует дату для API.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero сообщает, что дата не задана.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Before сравнивает даты как календарные дни.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// DateRange - включительный диапазон календарных дней.
type DateRange struct {
	Start Date
	End   Date
}

// ParseDateRange собирает диапазон из строк yyyy-MM-dd. Обе пустые строки означают «без диапазона».
func ParseDateRange(from, to string) (*DateRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: both start and end dates are required", ErrInvalidRange)
	}
	start, err := ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	end, err := ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	r := &DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Быстрые диапазоны экрана «мои заказы».
const (
	PresetAll        = "all"
	PresetToday      = "today"
	PresetLast7Days  = "7d"
	PresetThisMonth  = "month"
	lastDaysInPreset = 7
)

// Preset вычисляет быстрый диапазон относительно now в часовом поясе loc.
// today: сегодня; 7d: шесть предыдущих дней и сегодня; month: с первого числа по сегодня.
// all означает «без диапазона».
func Preset(name string, now time.Time, loc *time.Location) (*DateRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()
	today := Date{Year: y, Month: m, Day: d}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case PresetAll, "":
		return nil, nil
	case PresetToday:
		return &DateRange{Start: today, End: today}, nil
	case PresetLast7Days:
		// Полдень, чтобы смещение дней не зависело от перехода на летнее время.
		first := time.Date(y, m, d-(lastDaysInPreset-1), 12, 0, 0, 0, loc)
		return &DateRange{Start: DateOf(first, loc), End: today}, nil
	case PresetThisMonth:
		return &DateRange{Start: Date{Year: y, Month: m, Day: 1}, End: today}, nil
	}
	return nil, fmt.Errorf("%w: unknown range %q", ErrInvalidRange, name)
}

// Validate проверяет, что обе границы заданы и начало не позже конца.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: empty bound", ErrInvalidRange)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// Contains сообщает, попадает ли день в диапазон включительно.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start) && !r.End.Before(d)
}

// Reconciler фильтрует заказы по диапазону дат в фиксированном часовом поясе.
type Reconciler struct {
	loc    *time.Location
	logger *zap.Logger
}

// NewReconciler создаёт фильтр для часового пояса loc.
func NewReconciler(loc *time.Location, logger *zap.Logger) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{loc: loc, logger: logger}
}

// Range собирает диапазон либо из быстрого пресета, либо из явных дат.
// Пресет вместе с from/to считается ошибкой.
func (r *Reconciler) Range(preset, from, to string, now time.Time) (*DateRange, error) {
	preset = strings.TrimSpace(preset)
	if preset == "" || preset == PresetAll {
		return ParseDateRange(from, to)
	}
	if from != "" || to != "" {
		return nil, fmt.Errorf("%w: range %q cannot be combined with explicit dates", ErrInvalidRange, preset)
	}
	return Preset(preset, now, r.loc)
}

// ParseTimestamp разбирает дату заказа. Значения без зоны считаются заданными в поясе фильтра.
func (r *Reconciler) ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, s, r.loc)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", s)
}

// OrderDay выбирает дату сверки заказа: сначала ngay_nhan, затем ngay_tao.
func (r *Reconciler) OrderDay(o model.Order) (Date, bool) {
	for _, candidate := range []*string{o.AcceptedAt, o.CreatedAt} {
		if candidate == nil || *candidate == "" {
			continue
		}
		t, err := r.ParseTimestamp(*candidate)
		if err != nil {
			continue
		}
		return DateOf(t, r.loc), true
	}
	return Date{}, false
}

// Reconcile оставляет только заказы, чей день попадает в диапазон.
// Без диапазона список возвращается как есть. Заказы без разбираемой даты отбрасываются.
// Некорректный диапазон логируется, и возвращается исходный список.
func (r *Reconciler) Reconcile(orders []model.Order, dr *DateRange) []model.Order {
	if dr == nil {
		return orders
	}
	if err := dr.Validate(); err != nil {
		r.logger.Warn("date reconciliation skipped", zap.Error(err))
		return orders
	}

	res := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		day, ok := r.OrderDay(o)
		if !ok {
			r.logger.Debug("order dropped: no parsable date", zap.Int64("orderID", o.ID))
			continue
		}
		if dr.Contains(day) {
			res = append(res, o)
		}
	}

	if dropped := len(orders) - len(res); dropped > 0 {
		r.logger.Debug("orders filtered by date",
			zap.String("start", dr.Start.String()),
			zap.String("end", dr.End.String()),
			zap.Int("kept", len(res)),
			zap.Int("dropped", dropped),
		)
	}

	return res
}
