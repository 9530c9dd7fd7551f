package config

import (
	"strings"
	"time"
)

// SyncConfig — параметры опроса внешнего фида.
type SyncConfig struct {
	FeedURL string
	// Интервал между проходами синхронизации; не меньше MinSyncInterval.
	Interval time.Duration
	// Управляемые аэропорты (коды ИКАО).
	Airports []string
	// Ключевые слова для отбора событий без структурированных аэропортов.
	Keywords []string
}

// MinSyncInterval — нижняя граница интервала опроса.
const MinSyncInterval = time.Minute

func LoadSyncConfig() *SyncConfig {
	interval := time.Duration(getEnvInt("SYNC_INTERVAL_MIN", 5)) * time.Minute
	if interval < MinSyncInterval {
		interval = MinSyncInterval
	}

	return &SyncConfig{
		FeedURL:  getEnv("VATSIM_EVENTS_URL", "https://api.vatsim.net/v2/events"),
		Interval: interval,
		Airports: splitCSV(getEnv("MANAGED_AIRPORTS", "OBBI,OKKK")),
		Keywords: splitCSV(getEnv("FEED_KEYWORDS",
			"Gulf,Middle East,Bahrain,Kuwait,Emirates,Qatar,Saudi,Oman,Iraq,Jordan,Lebanon")),
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
