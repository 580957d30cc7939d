// cmd/seckill-service/main.go
package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dianping/internal/pkg/bootstrap"
	"dianping/internal/pkg/cache"
	"dianping/internal/pkg/idgen"
	"dianping/internal/pkg/logger"
	"dianping/internal/pkg/mq"
	redispkg "dianping/internal/pkg/redis"
	catalogapp "dianping/internal/service/catalog/application"
	cataloginfra "dianping/internal/service/catalog/infrastructure"
	cataloghttp "dianping/internal/service/catalog/interfaces"
	"dianping/internal/service/seckill/application"
	"dianping/internal/service/seckill/infrastructure"
	seckillhttp "dianping/internal/service/seckill/interfaces"
)

const (
	serviceName   = "seckill-service"
	consumerGroup = "g1"
	consumerName  = "c1"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	// 本地开发时从 .env 读配置，文件不存在是正常情况
	_ = godotenv.Load()

	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	// 1. 初始化核心技术组件
	redisClient, err := redispkg.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}
	defer redisClient.Close()

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true, // 把 MySQL 1062 之类翻译成 gorm.ErrDuplicatedKey
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mysql")
	}

	kafkaWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.NotificationTopic)
	defer kafkaWriter.Close()

	// 2. 缓存：重建工作池由组装根创建并注入，关停时统一排空
	rebuildPool := cache.NewRebuildPool(10)
	cacheClient := cache.NewClient(redisClient, rebuildPool)

	idWorker := idgen.NewWorker(redisClient)

	// 3. 仓储与业务 Service
	voucherRepo := infrastructure.NewGormVoucherRepository(db)
	orderRepo := infrastructure.NewGormOrderRepository(db)
	shopRepo := cataloginfra.NewGormShopRepository(db)

	seckillService := application.NewSeckillService(redisClient, cacheClient, idWorker, voucherRepo)
	shopService := catalogapp.NewShopService(cacheClient, shopRepo)

	// 4. 订单消息流消费者：先建消费组，再启动后台消费
	queue := infrastructure.NewOrderStreamQueue(redisClient, application.OrderStreamKey, consumerGroup, consumerName)
	if err := queue.EnsureGroup(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure order stream consumer group")
	}
	notifier := infrastructure.NewKafkaOrderNotifier(kafkaWriter)
	consumer := infrastructure.NewOrderConsumer(queue, orderRepo, redisClient, notifier)
	consumer.Start(context.Background())

	// 5. HTTP 路由 + 通用启动/优雅关停
	seckillHandler := seckillhttp.NewSeckillHandler(seckillService)
	shopHandler := cataloghttp.NewShopHandler(shopService)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			seckillHandler.RegisterRoutes(appCtx.Mux)
			shopHandler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			// 停止接收新订单的消费，再排空缓存重建任务
			consumer.Stop()
			if err := rebuildPool.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("cache rebuild pool did not drain in time")
			}
		},
	})
}
