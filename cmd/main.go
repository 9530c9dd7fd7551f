package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Leganyst/roster-core/internal/clock"
	"github.com/Leganyst/roster-core/internal/config"
	"github.com/Leganyst/roster-core/internal/db"
	"github.com/Leganyst/roster-core/internal/model"
	"github.com/Leganyst/roster-core/internal/observability/jsonlog"
	"github.com/Leganyst/roster-core/internal/repository"
	"github.com/Leganyst/roster-core/internal/roster"
	"github.com/Leganyst/roster-core/internal/service"
	"github.com/Leganyst/roster-core/internal/vatsim"
)

func main() {
	// 1. Загружаем конфиг БД из env.
	dbCfg, err := config.LoadDBConfig()
	if err != nil {
		log.Fatalf("load db config: %v", err)
	}

	// 2. Конфиг синхронизации и политика (опциональный YAML поверх дефолтов).
	syncCfg := config.LoadSyncConfig()
	policy, err := config.LoadPolicy(os.Getenv("POLICY_FILE"))
	if err != nil {
		log.Fatalf("load policy: %v", err)
	}

	// 3. Подключаемся к БД через GORM.
	gormDB, err := db.NewGormDB(dbCfg)
	if err != nil {
		log.Fatalf("init db: %v", err)
	}

	// 4. Миграции моделей и частичных индексов.
	if err := model.AutoMigrate(gormDB); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatalf("sql DB: %v", err)
	}
	defer sqlDB.Close()

	logger := jsonlog.New(os.Stdout)
	clk := clock.NewSystem()

	// 5. Репозитории (реализации на GORM).
	eventRepo := repository.NewGormEventRepository(gormDB)
	slotRepo := repository.NewGormSlotRepository(gormDB)
	suppRepo := repository.NewGormSuppressionRepository(gormDB)

	// 6. Сервисы ядра.
	notifier := service.NewLogNotifier(logger)
	lifecycle := service.LifecyclePolicy{
		PurgeDelay:       policy.PurgeDelay,
		PostEndGrace:     policy.PostEndGrace,
		MissingThreshold: policy.MissingThreshold,
	}
	eventSvc := service.NewEventService(
		gormDB, eventRepo, slotRepo, suppRepo,
		notifier, clk, lifecycle,
		roster.DefaultTilePolicy(), policy.Positions, logger,
	)

	feed := vatsim.NewClient(syncCfg.FeedURL, syncCfg.Airports, syncCfg.Keywords)
	syncSvc := service.NewSyncService(
		feed, eventRepo, suppRepo, eventSvc,
		clk, lifecycle, syncCfg.Airports, logger,
	)

	// 7. Планировщик синхронизации: стартует один раз, живёт до сигнала.
	ctx, cancel := context.WithCancel(context.Background())
	poller := service.NewPoller(syncSvc, eventSvc, syncCfg.Interval, logger)
	poller.Start(ctx)

	// 8. Грейсфул-шатдаун по сигналу.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("shutting down poller...")
	cancel()
	<-poller.Done()
}
