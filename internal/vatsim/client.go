package vatsim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Leganyst/roster-core/internal/roster"
)

// Client читает внешний фид событий и отбирает релевантные записи:
// хотя бы один управляемый аэропорт в событии или маршруте, либо
// совпадение по ключевым словам в названии/описании.
type Client struct {
	httpClient *http.Client
	baseURL    string
	airports   []string
	keywords   []string
}

func NewClient(baseURL string, airports, keywords []string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		airports:   airports,
		keywords:   keywords,
	}
}

// FetchEvents забирает фид и возвращает релевантные записи.
// Любой сбой получения — ErrUpstreamUnavailable; вызывающий
// деградирует до no-op, прежнее расписание остаётся в силе.
func (c *Client) FetchEvents(ctx context.Context) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", roster.ErrUpstreamUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", roster.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s", roster.ErrUpstreamUnavailable, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", roster.ErrUpstreamUnavailable, err)
	}

	events, err := decodeFeed(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", roster.ErrUpstreamUnavailable, err)
	}

	var relevant []Event
	for _, ev := range events {
		if c.Relevant(ev) {
			relevant = append(relevant, ev)
		}
	}
	return relevant, nil
}

// decodeFeed принимает оба известных формата ответа:
// объект {"data": [...]} и голый массив.
func decodeFeed(body []byte) ([]Event, error) {
	var wrapper struct {
		Data []Event `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Data != nil {
		return wrapper.Data, nil
	}

	var list []Event
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("unrecognized feed payload: %w", err)
	}
	return list, nil
}

// Relevant — относится ли запись фида к управляемой зоне.
func (c *Client) Relevant(ev Event) bool {
	for _, a := range ev.Airports {
		if c.managedAirport(a.ICAO) {
			return true
		}
	}
	for _, r := range ev.Routes {
		if c.managedAirport(r.Departure) || c.managedAirport(r.Arrival) {
			return true
		}
	}
	text := ev.Name + " " + ev.Description
	for _, k := range c.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func (c *Client) managedAirport(icao string) bool {
	for _, m := range c.airports {
		if strings.EqualFold(strings.TrimSpace(icao), m) {
			return true
		}
	}
	return false
}
