package roster

import "errors"

// Ошибки доменного ядра ростеринга. Сервисный слой возвращает их
// вызывающему как есть, сравнение — через errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyOccupied     = errors.New("slot already has a primary claim")
	ErrIneligibleRank      = errors.New("claimant rating below position minimum")
	ErrBookingClosed       = errors.New("booking is closed")
	ErrCancellationLocked  = errors.New("cancellation window is locked")
	ErrOverlap             = errors.New("claimant holds an overlapping claim on this event")
	ErrInvalidTimeWindow   = errors.New("invalid time window")
	ErrConflict            = errors.New("storage conflict")
	ErrUpstreamUnavailable = errors.New("upstream feed unavailable")
	ErrUnknownPosition     = errors.New("unknown position")
	ErrAirportNotManaged   = errors.New("airport is not managed")
)
