package model

import (
	"time"

	"github.com/google/uuid"
)

// Вид заявки на слот.
type ClaimKind string

const (
	ClaimKindPrimary ClaimKind = "primary"
	ClaimKindStandby ClaimKind = "standby"
)

// claims — журнал заявок на слоты.
//
// Автоинкрементный ID даёт стабильный порядок вставки для FIFO-продвижения
// standby-заявок при равных CreatedAt. Инварианты "не больше одной primary
// на слот" и "не больше одной standby на пару (слот, пользователь)"
// обеспечиваются частичными уникальными индексами (см. AutoMigrate).
type Claim struct {
	ID int64 `gorm:"primaryKey;autoIncrement"`

	SlotID uuid.UUID `gorm:"type:uuid;not null;index"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index"`

	Kind ClaimKind `gorm:"type:varchar(16);not null"`

	CreatedAt time.Time `gorm:"not null;index"`

	Slot *Slot `gorm:"foreignKey:SlotID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}
