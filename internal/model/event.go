package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Статус события в жизненном цикле draft → published → cancelled.
// Удалённые события физически вычищаются, отдельного статуса у них нет.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
)

// events
type Event struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Стабильный идентификатор во внешнем фиде.
	// nil для событий, созданных вручную координаторами.
	VatsimID *int64 `gorm:"uniqueIndex"`

	Name             string `gorm:"type:varchar(255);not null"`
	ShortDescription string `gorm:"type:text"`
	Description      string `gorm:"type:text"`
	Banner           string `gorm:"type:text"`
	Link             string `gorm:"type:text"`
	Type             string `gorm:"type:varchar(64)"`

	StartTime time.Time `gorm:"not null;index"`
	EndTime   time.Time `gorm:"not null"`

	// Аэропорты события через запятую, как в фиде.
	Airports string         `gorm:"type:text"`
	Routes   datatypes.JSON `gorm:"type:jsonb"`

	Status EventStatus `gorm:"type:varchar(16);not null;default:'draft';index"`

	CancelledAt *time.Time
	// Срок жёсткого удаления; выставляется только при отмене.
	DeleteAt *time.Time

	LastSeenAt *time.Time
	// Сколько подряд проходов синхронизации событие отсутствовало в фиде.
	MissingCount int `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Slots []Slot `gorm:"foreignKey:EventID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// AirportList разбирает CSV-поле Airports в список кодов ИКАО.
func (e *Event) AirportList() []string {
	if e.Airports == "" {
		return nil
	}
	parts := strings.Split(e.Airports, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Window возвращает временное окно события [StartTime, EndTime).
func (e *Event) Window() (start, end time.Time) {
	return e.StartTime, e.EndTime
}
