package clock

import "time"

// Clock — инжектируемое время для проверок политик по настенным часам.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem возвращает часы на базе time.Now (всегда UTC).
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type fixedClock struct {
	now time.Time
}

// NewFixed возвращает часы, застывшие на заданном моменте (для тестов).
func NewFixed(t time.Time) Clock {
	return fixedClock{now: t.UTC()}
}

func (f fixedClock) Now() time.Time {
	return f.now
}
