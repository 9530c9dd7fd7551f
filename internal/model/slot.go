package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Статус слота ростера.
type SlotStatus string

const (
	SlotStatusOpen    SlotStatus = "open"
	SlotStatusClaimed SlotStatus = "claimed"
)

// slots
//
// Составной уникальный индекс slots_tile_key делает генерацию слотов
// идемпотентной: повторная нарезка того же события не вставляет дублей.
type Slot struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	EventID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:slots_tile_key"`

	// Текущий владелец primary-заявки; зеркалится движком заявок.
	UserID *uuid.UUID `gorm:"type:uuid;index"`

	Airport  string `gorm:"type:varchar(8);not null;uniqueIndex:slots_tile_key"`
	Position string `gorm:"type:varchar(16);not null;uniqueIndex:slots_tile_key"`

	StartsAt time.Time `gorm:"not null;index;uniqueIndex:slots_tile_key"`
	EndsAt   time.Time `gorm:"not null;uniqueIndex:slots_tile_key"`

	Status SlotStatus `gorm:"type:varchar(16);not null;default:'open';index"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Event  *Event  `gorm:"foreignKey:EventID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Claims []Claim `gorm:"foreignKey:SlotID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (s *Slot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
