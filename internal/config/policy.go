package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Leganyst/roster-core/internal/roster"
)

// Policy — настраиваемые константы политики бронирования и жизненного цикла.
// Пороговые значения фиксированы по умолчанию, но намеренно вынесены
// в конфигурацию: это параметры политики, а не законы движка.
type Policy struct {
	// Минимальные рейтинги по базовым кодам позиций.
	Ranks roster.RankTable
	// Базовые коды позиций, генерируемые на каждый аэропорт события.
	Positions []string
	// Бронирование закрывается за BookingClose до начала события.
	BookingClose time.Duration
	// Отмена заявки блокируется за CancelLock до начала слота.
	CancelLock time.Duration
	// Сколько подряд пропусков в фиде переводит событие в cancelled.
	MissingThreshold int
	// Отложенное жёсткое удаление после отмены.
	PurgeDelay time.Duration
	// Грейс после конца события до зачистки.
	PostEndGrace time.Duration
}

// DefaultPolicy возвращает политику по умолчанию.
func DefaultPolicy() *Policy {
	return &Policy{
		Ranks:            roster.DefaultRankTable(),
		Positions:        []string{"DEL", "GND", "TWR", "APP", "CTR"},
		BookingClose:     15 * time.Minute,
		CancelLock:       60 * time.Minute,
		MissingThreshold: 2,
		PurgeDelay:       10 * time.Minute,
		PostEndGrace:     5 * time.Minute,
	}
}

// policyFile — YAML-представление политики; нулевые поля не трогают дефолты.
type policyFile struct {
	Ranks            map[string]int `yaml:"ranks"`
	Positions        []string       `yaml:"positions"`
	BookingCloseMin  int            `yaml:"booking_close_min"`
	CancelLockMin    int            `yaml:"cancel_lock_min"`
	MissingThreshold int            `yaml:"missing_threshold"`
	PurgeDelayMin    int            `yaml:"purge_delay_min"`
	PostEndGraceMin  int            `yaml:"post_end_grace_min"`
}

// LoadPolicy читает политику из YAML-файла поверх дефолтов.
// Пустой путь или отсутствующий файл — не ошибка, остаются дефолты.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	if len(f.Ranks) > 0 {
		p.Ranks = roster.RankTable(f.Ranks)
	}
	if len(f.Positions) > 0 {
		p.Positions = f.Positions
	}
	if f.BookingCloseMin > 0 {
		p.BookingClose = time.Duration(f.BookingCloseMin) * time.Minute
	}
	if f.CancelLockMin > 0 {
		p.CancelLock = time.Duration(f.CancelLockMin) * time.Minute
	}
	if f.MissingThreshold > 0 {
		p.MissingThreshold = f.MissingThreshold
	}
	if f.PurgeDelayMin > 0 {
		p.PurgeDelay = time.Duration(f.PurgeDelayMin) * time.Minute
	}
	if f.PostEndGraceMin > 0 {
		p.PostEndGrace = time.Duration(f.PostEndGraceMin) * time.Minute
	}

	return p, nil
}
