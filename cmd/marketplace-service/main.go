// cmd/marketplace-service/main.go
package main

import (
	"context"
	"flag"
	"os"

	"go.opentelemetry.io/otel"

	"lensmart/internal/migrate"
	"lensmart/internal/pkg/bootstrap"
	"lensmart/internal/pkg/database"
	"lensmart/internal/pkg/logger"
	"lensmart/internal/pkg/mq"
	"lensmart/internal/pkg/redis"
	"lensmart/internal/service/events"
	identityinfra "lensmart/internal/service/identity/infrastructure"
	"lensmart/internal/service/idempotency"
	inventoryinfra "lensmart/internal/service/inventory/infrastructure"
	inventoryiface "lensmart/internal/service/inventory/interfaces"
	loyaltyapp "lensmart/internal/service/loyalty/application"
	loyaltyinfra "lensmart/internal/service/loyalty/infrastructure"
	loyaltyiface "lensmart/internal/service/loyalty/interfaces"
	"lensmart/internal/service/loyalty/policy"
	orderapp "lensmart/internal/service/order/application"
	orderinfra "lensmart/internal/service/order/infrastructure"
	orderiface "lensmart/internal/service/order/interfaces"
	redemptionapp "lensmart/internal/service/redemption/application"
	redemptioninfra "lensmart/internal/service/redemption/infrastructure"
	redemptioniface "lensmart/internal/service/redemption/interfaces"
	summaryapp "lensmart/internal/service/summary/application"
	summaryinfra "lensmart/internal/service/summary/infrastructure"
	summaryiface "lensmart/internal/service/summary/interfaces"
)

// main 是组装根：加载配置，创建基础设施，组装各服务后交给 bootstrap 运行
func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		logger.Ctx(context.Background()).Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Service.LogLevel, cfg.Service.Name)
	ctx := context.Background()

	if err := run(ctx, cfg); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("service exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *bootstrap.Config) error {
	// 1. 数据库
	db, err := database.NewMySQL(cfg.MySQL)
	if err != nil {
		return err
	}
	if cfg.MySQL.AutoMigrate {
		if err := migrate.Run(db); err != nil {
			return err
		}
		logger.Ctx(ctx).Info().Msg("schema migrated")
	}
	var shutdown []func(ctx context.Context) error
	shutdown = append(shutdown, func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	// 2. 可选的 Redis 幂等存储
	var (
		orderIdem      *idempotency.RedisStore
		redemptionIdem *idempotency.RedisStore
	)
	if cfg.Redis.Addrs != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		store, err := idempotency.NewRedisStore(rdb, cfg.Idempotency.TTL)
		if err != nil {
			return err
		}
		orderIdem, redemptionIdem = store, store
		shutdown = append(shutdown, func(context.Context) error { return rdb.Close() })
	} else {
		logger.Ctx(ctx).Warn().Msg("redis not configured, Idempotency-Key headers are ignored")
	}

	// 3. 事件发布与补货消费
	var (
		publisher events.Publisher = events.LogPublisher{}
		workers   []bootstrap.Worker
	)

	products := inventoryinfra.NewGormInventoryLedger(db)
	catalog := loyaltyinfra.NewGormLoyaltyCatalog(db)
	points := loyaltyinfra.NewGormPointsLedger(db)
	directory := identityinfra.NewGormDirectory(db)
	tx := database.NewTransactor(db)
	retry := cfg.Engine.RetryPolicy()

	if cfg.Kafka.Enabled() {
		kp := events.NewKafkaPublisher(mq.NewKafkaWriter(cfg.Kafka.BrokerList(), cfg.Kafka.EventsTopic))
		publisher = kp
		shutdown = append(shutdown, func(context.Context) error { return kp.Close() })

		reader := mq.NewKafkaReader(cfg.Kafka.BrokerList(), cfg.Kafka.RestockTopic, cfg.Kafka.ConsumerGroup)
		consumer := inventoryiface.NewRestockConsumer(reader, products, catalog, tx, retry)
		workers = append(workers, consumer.Run)
	} else {
		logger.Ctx(ctx).Warn().Msg("kafka not configured, events are logged and restock consumer is disabled")
	}

	accrual, err := policy.NewCELAccrualPolicy(cfg.Loyalty.AccrualRule)
	if err != nil {
		return err
	}

	// 4. 应用服务
	orderDeps := orderapp.Deps{
		Orders:    orderinfra.NewGormOrderRepository(db),
		Inventory: products,
		Points:    points,
		Accrual:   accrual,
		Directory: directory,
		Tx:        tx,
		Retry:     retry,
		Events:    publisher,
		Tracer:    otel.Tracer("order-service"),
	}
	if orderIdem != nil {
		orderDeps.Idempotency = orderIdem
	}
	redemptionDeps := redemptionapp.Deps{
		Redemptions: redemptioninfra.NewGormRedemptionRepository(db),
		Catalog:     catalog,
		Inventory:   products,
		Points:      points,
		Directory:   directory,
		Tx:          tx,
		Retry:       retry,
		Events:      publisher,
		Tracer:      otel.Tracer("redemption-service"),
	}
	if redemptionIdem != nil {
		redemptionDeps.Idempotency = redemptionIdem
	}

	orderHandler := orderiface.NewOrderHandler(orderapp.NewOrderApplicationService(orderDeps))
	redemptionHandler := redemptioniface.NewRedemptionHandler(redemptionapp.NewRedemptionApplicationService(redemptionDeps))
	loyaltyHandler := loyaltyiface.NewLoyaltyHandler(loyaltyapp.NewLoyaltyApplicationService(points, catalog, otel.Tracer("loyalty-service")))
	summaryHandler := summaryiface.NewSummaryHandler(summaryapp.NewSummaryApplicationService(summaryinfra.NewGormSummaryQueries(db), otel.Tracer("summary-service")))

	logger.Ctx(ctx).Info().
		Str("accrual_rule", accrual.Expression()).
		Int("max_conflict_retries", cfg.Engine.MaxConflictRetries).
		Msg("marketplace engine assembled")

	// 5. 启动
	return bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.Service.Name,
		Port:        cfg.Service.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			orderHandler.RegisterRoutes(appCtx.Mux)
			redemptionHandler.RegisterRoutes(appCtx.Mux)
			loyaltyHandler.RegisterRoutes(appCtx.Mux)
			summaryHandler.RegisterRoutes(appCtx.Mux)
		},
		Workers:    workers,
		OnShutdown: reverse(shutdown),
	})
}

// reverse 让资源按创建的相反顺序关闭
func reverse(fns []func(ctx context.Context) error) []func(ctx context.Context) error {
	out := make([]func(ctx context.Context) error, 0, len(fns))
	for i := len(fns) - 1; i >= 0; i-- {
		out = append(out, fns[i])
	}
	return out
}
