package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// profiles — локальное зеркало каталога пользователей.
// Аутентификация и ведение профилей — внешний компонент; здесь хранится
// только то, что нужно проверкам допуска: рейтинг и роль.
type Profile struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	CID  string `gorm:"type:varchar(16);uniqueIndex"`
	Name string `gorm:"type:varchar(255)"`

	Email string `gorm:"type:varchar(255)"`

	Rating      int    `gorm:"not null;default:0"`
	RatingShort string `gorm:"type:varchar(8)"`

	Role string `gorm:"type:varchar(32);not null;default:'guest'"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IsStaff — имеет ли профиль координаторские привилегии.
func (p *Profile) IsStaff() bool {
	switch p.Role {
	case "staff", "admin", "coordinator":
		return true
	}
	return false
}
