package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/api"
	"github.com/solusinc/manylead-cloud-sub003/internal/config"
	"github.com/solusinc/manylead-cloud-sub003/internal/events"
	"github.com/solusinc/manylead-cloud-sub003/internal/logger"
	"github.com/solusinc/manylead-cloud-sub003/internal/mirror"
	"github.com/solusinc/manylead-cloud-sub003/internal/processor"
	"github.com/solusinc/manylead-cloud-sub003/internal/proxypool"
	"github.com/solusinc/manylead-cloud-sub003/internal/queue"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
	"github.com/solusinc/manylead-cloud-sub003/internal/service"
	"github.com/solusinc/manylead-cloud-sub003/internal/storage"
	"github.com/solusinc/manylead-cloud-sub003/internal/whatsapp"
	"github.com/solusinc/manylead-cloud-sub003/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	metricsAddr := flag.String("metrics-addr", ":9091", "prometheus listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log, err := logger.New(logger.Config{Development: cfg.Development})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tenants, err := repository.NewTenantManager(ctx, cfg.Mongo.URI, cfg.Mongo.TenantPref, cfg.Mongo.ControlDB, log)
	if err != nil {
		log.Fatal("mongo connect failed", zap.Error(err))
	}
	defer tenants.Close(context.Background())

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pub, err := events.NewNatsPublisher(cfg.Nats.URL, log)
	if err != nil {
		log.Fatal("nats connect failed", zap.Error(err))
	}
	defer pub.Close()

	pool := proxypool.New(proxypool.Config{
		BaseURL:   cfg.ProxyPool.BaseURL,
		APIKey:    cfg.ProxyPool.APIKey,
		Ceiling:   cfg.ProxyPool.PoolCeiling,
		KeepAlive: time.Duration(cfg.ProxyPool.KeepAliveSeconds) * time.Second,
	}, rdb, log)
	go pool.KeepAlive(ctx)

	gateway := whatsapp.NewClient(whatsapp.ClientConfig{
		BaseURL:        cfg.Gateway.BaseURL,
		APIKey:         cfg.Gateway.APIKey,
		Timeout:        time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second,
		BreakerMaxFail: cfg.Gateway.BreakerMaxFails,
		BreakerTimeout: time.Duration(cfg.Gateway.BreakerTimeoutSec) * time.Second,
	}, pool, log)

	blobs, err := storage.NewStore(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.PublicRead)
	if err != nil {
		log.Fatal("s3 init failed", zap.Error(err))
	}

	mediaProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.MediaTopic)
	defer mediaProducer.Close()
	mediaConsumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.MediaTopic, cfg.Kafka.GroupID, log)
	defer mediaConsumer.Close()

	chats := repository.NewMongoChatStore(tenants)
	messages := repository.NewMongoMessageStore(tenants)
	attachments := repository.NewMongoAttachmentStore(tenants)
	scheduled := repository.NewMongoScheduledStore(tenants)
	participantStore := repository.NewMongoParticipantStore(tenants)
	contacts := repository.NewMongoContactStore(tenants)
	orgStore := repository.NewMongoOrgStore(tenants)
	control := repository.NewMongoControlStore(tenants)

	participants := service.NewParticipantService(participantStore)
	scheduledSvc := service.NewScheduledService(scheduled, chats, orgStore, log)
	postActions := service.NewPostActionsService(chats, messages, contacts, orgStore, pub, gateway, log)
	mirrorSvc := mirror.New(chats, messages, contacts, participantStore, orgStore, control, pub, log)
	policy := service.DefaultMirrorPolicy{}

	chatSvc := service.NewChatService(chats, messages, participants, orgStore, scheduledSvc, postActions, pub, log)
	msgSvc := service.NewMessageService(chats, messages, attachments, contacts, orgStore, participants,
		gateway, blobs, mirrorSvc, policy, scheduledSvc, pub, log)
	proc := processor.New(chats, messages, attachments, contacts, participants,
		gateway, mediaProducer, scheduledSvc, pub, log)

	mediaWorker := worker.NewMediaWorker(attachments, messages, gateway, blobs, pub, log,
		cfg.Worker.MediaRatePerSecond, cfg.Worker.MediaConcurrency)
	go func() {
		if err := mediaConsumer.Run(ctx, mediaWorker.Handle); err != nil && ctx.Err() == nil {
			log.Error("media consumer stopped", zap.Error(err))
		}
	}()

	dispatcher := worker.NewScheduler(control, scheduled, chats, contacts, orgStore, messages,
		gateway, pub, log,
		time.Duration(cfg.Worker.SchedulerPollSeconds)*time.Second, cfg.Worker.SchedulerBatch)
	go func() {
		if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("scheduler stopped", zap.Error(err))
		}
	}()

	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	handler := api.NewHandler(control, proc, chatSvc, msgSvc, scheduledSvc, log)
	srv := api.NewServer(handler, api.ServerOptions{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Verifier:     api.NewTokenVerifier(cfg.Server.JWTSecret),
		Limiter:      api.NewRateLimiter(rdb, "ratelimit", cfg.Server.RateLimitPerMin, time.Minute),
	})

	go func() {
		addr := ":" + cfg.Server.Port
		log.Info("starting server", zap.String("addr", addr))
		if err := srv.Listen(addr); err != nil {
			log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("server stopped")
}
