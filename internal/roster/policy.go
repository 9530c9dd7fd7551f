package roster

import (
	"fmt"
	"strings"
)

// ObserverRank — рейтинг наблюдателя. Рейтинг <= ObserverRank
// не допускается ни к одной позиции независимо от таблицы.
const ObserverRank = 1

// RankTable — минимальные рейтинги по базовому коду позиции
// (суффикс полного кода после "_", например "TWR" в "OBBI_TWR").
type RankTable map[string]int

// DefaultRankTable возвращает стандартную таблицу допусков:
// наземные позиции — S1, вышка — S2, подход — S3, контроль — C1.
func DefaultRankTable() RankTable {
	return RankTable{
		"DEL": 2,
		"GND": 2,
		"TWR": 3,
		"APP": 4,
		"CTR": 5,
	}
}

// MinimumRank возвращает минимальный рейтинг для кода позиции.
// Принимает и полный код ("OBBI_TWR"), и базовый ("TWR").
func (t RankTable) MinimumRank(positionCode string) (int, error) {
	base := positionCode
	if i := strings.LastIndex(positionCode, "_"); i >= 0 {
		base = positionCode[i+1:]
	}
	rank, ok := t[base]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPosition, positionCode)
	}
	return rank, nil
}

// Eligible проверяет допуск клейманта к позиции.
func (t RankTable) Eligible(positionCode string, rating int) error {
	min, err := t.MinimumRank(positionCode)
	if err != nil {
		return err
	}
	if rating <= ObserverRank {
		return ErrIneligibleRank
	}
	if rating < min {
		return ErrIneligibleRank
	}
	return nil
}
