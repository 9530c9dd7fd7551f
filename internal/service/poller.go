package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Leganyst/roster-core/internal/observability/jsonlog"
)

// Syncer — один проход синхронизации фида.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Purger — один проход зачистки устаревших событий.
type Purger interface {
	PurgeExpired(ctx context.Context) error
}

// MinPollInterval — нижняя граница интервала опроса.
const MinPollInterval = time.Minute

// Poller периодически запускает синхронизацию и зачистку.
//
// Состояние планировщика явное: Start вызывается один раз при старте
// процесса, повторные вызовы — no-op; остановка — через отмену контекста.
// В полёте может быть не больше одного прохода: тик, пришедший во время
// работы предыдущего, пропускается, а не ставится в очередь.
type Poller struct {
	sync     Syncer
	purge    Purger
	interval time.Duration
	log      *jsonlog.Logger

	startOnce sync.Once
	inFlight  atomic.Bool
	done      chan struct{}
}

func NewPoller(sync Syncer, purge Purger, interval time.Duration, log *jsonlog.Logger) *Poller {
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	return &Poller{
		sync:     sync,
		purge:    purge,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start запускает цикл опроса в фоне. Повторные вызовы игнорируются.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		go p.run(ctx)
	})
}

// Done закрывается после полной остановки цикла.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("poller started", map[string]any{"interval": p.interval.String()})

	// Первый проход сразу, не дожидаясь первого тика.
	p.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopping", map[string]any{"reason": ctx.Err().Error()})
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход, если предыдущий уже завершился.
// Возвращает false, когда проход пропущен из-за ещё идущего.
func (p *Poller) RunOnce(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.log.Warn("sync tick skipped: previous run still in flight", nil)
		return false
	}
	defer p.inFlight.Store(false)

	if err := p.sync.Sync(ctx); err != nil {
		p.log.Error("sync failed", map[string]any{"error": err.Error()})
	}
	if err := p.purge.PurgeExpired(ctx); err != nil {
		p.log.Error("purge failed", map[string]any{"error": err.Error()})
	}
	return true
}
