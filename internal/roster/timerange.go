package roster

import "time"

// TimeRange представляет полуоткрытый интервал [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange создаёт интервал и делает простую валидацию.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if start.IsZero() || end.IsZero() {
		return TimeRange{}, ErrInvalidTimeWindow
	}
	if !end.After(start) {
		return TimeRange{}, ErrInvalidTimeWindow
	}
	return TimeRange{Start: start, End: end}, nil
}

// Duration возвращает длительность интервала.
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// Overlaps проверяет пересечение полуоткрытых интервалов:
// касание концами пересечением не считается.
func (tr TimeRange) Overlaps(other TimeRange) bool {
	return tr.Start.Before(other.End) && other.Start.Before(tr.End)
}

// Contains проверяет, что inner целиком лежит внутри tr.
func (tr TimeRange) Contains(inner TimeRange) bool {
	return !inner.Start.Before(tr.Start) && !inner.End.After(tr.End)
}
