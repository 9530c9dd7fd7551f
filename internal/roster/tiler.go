package roster

import "time"

// SlotDescriptor — ключ генерируемого слота: аэропорт, полный код позиции
// и временное окно. Набор дескрипторов детерминирован для одинаковых входов.
type SlotDescriptor struct {
	Airport  string
	Position string
	Start    time.Time
	End      time.Time
}

// TilePolicy задаёт правила нарезки окна события на слоты.
type TilePolicy struct {
	// Базовая ширина слота.
	TileWidth time.Duration
	// Ширина слота для длинных событий (Duration >= WideTileMin).
	WideTileWidth time.Duration
	// События короче этого порога получают один слот на всё окно.
	SingleSlotMax time.Duration
	// Порог длительности, начиная с которого применяется WideTileWidth.
	WideTileMin time.Duration
	// Хвостовой слот короче этого порога отбрасывается, если он не единственный.
	MinTail time.Duration
}

// DefaultTilePolicy возвращает стандартные параметры нарезки.
func DefaultTilePolicy() TilePolicy {
	return TilePolicy{
		TileWidth:     60 * time.Minute,
		WideTileWidth: 90 * time.Minute,
		SingleSlotMax: 90 * time.Minute,
		WideTileMin:   180 * time.Minute,
		MinTail:       15 * time.Minute,
	}
}

// Tile разбивает окно события на слоты по каждой паре (аэропорт × позиция).
// Код позиции собирается как "<AIRPORT>_<POS>". Пустой список аэропортов
// даёт пустой результат — это не ошибка.
func Tile(window TimeRange, airports, positions []string, p TilePolicy) []SlotDescriptor {
	ranges := tileWindow(window, p)
	if len(ranges) == 0 {
		return nil
	}

	var out []SlotDescriptor
	for _, airport := range airports {
		for _, pos := range positions {
			for _, r := range ranges {
				out = append(out, SlotDescriptor{
					Airport:  airport,
					Position: airport + "_" + pos,
					Start:    r.Start,
					End:      r.End,
				})
			}
		}
	}
	return out
}

// tileWindow нарезает одно временное окно по TilePolicy.
// Последний слот клипуется по концу окна.
func tileWindow(w TimeRange, p TilePolicy) []TimeRange {
	d := w.Duration()
	if d <= 0 {
		return nil
	}
	if d <= p.SingleSlotMax {
		return []TimeRange{w}
	}

	width := p.TileWidth
	if d >= p.WideTileMin {
		width = p.WideTileWidth
	}

	var out []TimeRange
	for cur := w.Start; cur.Before(w.End); cur = cur.Add(width) {
		end := cur.Add(width)
		if end.After(w.End) {
			end = w.End
		}
		out = append(out, TimeRange{Start: cur, End: end})
	}

	// Клипованный хвост короче минимума отбрасываем, если он не единственный.
	if len(out) > 1 && out[len(out)-1].Duration() < p.MinTail {
		out = out[:len(out)-1]
	}

	return out
}
