package model

import (
	"time"

	"github.com/google/uuid"
)

// suppressions — внешние идентификаторы событий, удалённых координаторами.
// Синхронизация пропускает такие записи фида, чтобы удалённое событие
// не воскресло на следующем проходе.
type Suppression struct {
	VatsimID int64 `gorm:"primaryKey"`

	SuppressedAt time.Time  `gorm:"not null"`
	SuppressedBy *uuid.UUID `gorm:"type:uuid"`
}
