package vatsim

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/Leganyst/roster-core/internal/roster"
)

// Event — сырая запись внешнего фида. Фид ненадёжен: любое поле может
// отсутствовать или дрейфовать, поэтому всё необязательное — указатели
// либо нулевые значения, а не ad hoc пробы свойств.
type Event struct {
	ID               *int64    `json:"id"`
	Type             string    `json:"type"`
	Name             string    `json:"name"`
	Link             string    `json:"link"`
	Banner           string    `json:"banner"`
	ShortDescription string    `json:"short_description"`
	Description      string    `json:"description"`
	StartTime        string    `json:"start_time"`
	EndTime          string    `json:"end_time"`
	Airports         []Airport `json:"airports"`
	Routes           []Route   `json:"routes"`
}

type Airport struct {
	ICAO string `json:"icao"`
}

type Route struct {
	Departure string `json:"departure"`
	Arrival   string `json:"arrival"`
	Route     string `json:"route"`
}

// Normalized — запись фида после нормализации: абсолютные моменты времени,
// стабильный внешний идентификатор, аэропорты в верхнем регистре.
type Normalized struct {
	ExternalID       int64
	Name             string
	ShortDescription string
	Description      string
	Banner           string
	Link             string
	Type             string
	Start            time.Time
	End              time.Time
	Airports         []string
	RoutesJSON       []byte
}

// Normalize превращает сырую запись в Normalized. Неразборчивые временные
// поля — ошибка записи (запись пропускается, не весь батч). Если аэропорты
// не заданы структурно, они выводятся из маршрутов и текста по списку
// управляемых аэропортов.
func Normalize(ev Event, managedAirports []string) (Normalized, error) {
	if strings.TrimSpace(ev.Name) == "" {
		return Normalized{}, fmt.Errorf("feed record has no name")
	}

	start, err := parseFeedTime(ev.StartTime)
	if err != nil {
		return Normalized{}, fmt.Errorf("%w: start_time %q", roster.ErrInvalidTimeWindow, ev.StartTime)
	}
	end, err := parseFeedTime(ev.EndTime)
	if err != nil {
		return Normalized{}, fmt.Errorf("%w: end_time %q", roster.ErrInvalidTimeWindow, ev.EndTime)
	}
	if !end.After(start) {
		return Normalized{}, fmt.Errorf("%w: end %v not after start %v", roster.ErrInvalidTimeWindow, end, start)
	}

	airports := structuredAirports(ev)
	if len(airports) == 0 {
		airports = inferAirports(ev, managedAirports)
	}

	var routesJSON []byte
	if len(ev.Routes) > 0 {
		routesJSON, _ = json.Marshal(ev.Routes)
	}

	return Normalized{
		ExternalID:       stableExternalID(ev, start),
		Name:             ev.Name,
		ShortDescription: ev.ShortDescription,
		Description:      ev.Description,
		Banner:           ev.Banner,
		Link:             ev.Link,
		Type:             ev.Type,
		Start:            start,
		End:              end,
		Airports:         airports,
		RoutesJSON:       routesJSON,
	}, nil
}

// parseFeedTime принимает RFC3339 и его вариант без смещения.
func parseFeedTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func structuredAirports(ev Event) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, a := range ev.Airports {
		icao := strings.ToUpper(strings.TrimSpace(a.ICAO))
		if icao == "" {
			continue
		}
		if _, ok := seen[icao]; ok {
			continue
		}
		seen[icao] = struct{}{}
		out = append(out, icao)
	}
	return out
}

// inferAirports выводит аэропорты из маршрутов и текста события,
// когда структурированные данные отсутствуют.
func inferAirports(ev Event, managed []string) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(icao string) {
		icao = strings.ToUpper(strings.TrimSpace(icao))
		if icao == "" {
			return
		}
		if _, ok := seen[icao]; ok {
			return
		}
		seen[icao] = struct{}{}
		out = append(out, icao)
	}

	for _, r := range ev.Routes {
		for _, m := range managed {
			if strings.EqualFold(r.Departure, m) || strings.EqualFold(r.Arrival, m) {
				add(m)
			}
		}
	}

	text := ev.Name + " " + ev.ShortDescription + " " + ev.Description
	upper := strings.ToUpper(text)
	for _, m := range managed {
		if strings.Contains(upper, strings.ToUpper(m)) {
			add(m)
		}
	}

	return out
}

// stableExternalID возвращает идентификатор записи фида. Когда фид не дал
// числового id, идентификатор выводится из имени и времени начала и
// уводится в отрицательный диапазон, чтобы не пересечься с настоящими id.
func stableExternalID(ev Event, start time.Time) int64 {
	if ev.ID != nil && *ev.ID != 0 {
		return *ev.ID
	}
	h := fnv.New64a()
	h.Write([]byte(ev.Name))
	h.Write([]byte{'|'})
	h.Write([]byte(start.UTC().Format(time.RFC3339)))
	return -int64(h.Sum64()&0x7fffffffffffffff) - 1
}
