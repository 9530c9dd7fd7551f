package model

import "gorm.io/gorm"

// AutoMigrate выполняет миграцию всех сущностей ядра ростеринга
// и создаёт частичные уникальные индексы, которыми движок заявок
// обеспечивает свои инварианты. Синтаксис индексов общий для
// Postgres и SQLite, поэтому миграция работает и в тестах.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Profile{},
		&Event{},
		&Slot{},
		&Claim{},
		&Suppression{},
	); err != nil {
		return err
	}

	partialIndexes := []string{
		// Не больше одной primary-заявки на слот.
		`CREATE UNIQUE INDEX IF NOT EXISTS claims_primary_unique
		   ON claims (slot_id) WHERE kind = 'primary'`,
		// Не больше одной standby-заявки на пару (слот, пользователь).
		`CREATE UNIQUE INDEX IF NOT EXISTS claims_standby_user_unique
		   ON claims (slot_id, user_id) WHERE kind = 'standby'`,
	}
	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}

	return nil
}
