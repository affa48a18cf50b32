package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"IMProject/global"
	"IMProject/logger"
	"IMProject/service/gateway"
	"IMProject/service/gateway/handlers"
	"IMProject/service/kafka"
	"IMProject/service/natsx"
	"IMProject/service/storage"
	redis "IMProject/service/storage/redis"
	"IMProject/tools/security"
)

func main() {
	cfg := &global.MessageGatewayConfig

	if err := global.ConfigAll(cfg); err != nil {
		logger.Errorf("[Boot] init failed: %v", err)
		os.Exit(1)
	}
	defer redis.CloseRedis()

	store := storage.NewSessionStore()
	validator := security.NewJWTValidator(global.GetJwtSecret())
	s := gateway.NewServer(cfg, store, validator)

	s.Disp().Register(handlers.NewLoginHandler())
	s.Disp().Register(handlers.NewLogoutHandler())
	s.Disp().Register(handlers.NewHeartbeatHandler())
	s.Disp().Register(handlers.NewSingleMessageHandler())
	s.Disp().Register(handlers.NewGroupMessageHandler())
	s.Disp().Register(handlers.NewVideoMessageHandler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Kafka：跨节点转发链路。起不来只降级成单节点，不拦启动。
	if err := kafka.InitKafkaClient(cfg.KafkaBrokers); err != nil {
		logger.Warnf("[Boot] kafka unavailable, forwarding disabled: %v", err)
	} else {
		defer kafka.CloseKafka()
		s.SetForwarder(kafka.NewForwarder(cfg.ForwardTopic))
		if err := kafka.StartGatewayConsumer(ctx, s); err != nil {
			logger.Errorf("[Boot] gateway consumer failed: %v", err)
			os.Exit(1)
		}
	}

	// NATS：跨节点踢人广播，同样可降级
	if nc, err := natsx.NewNatsxClient(natsx.NatsxConfig{
		Servers: cfg.NatsServers,
		Name:    "im-gateway-" + cfg.GatewayNodeId,
	}); err != nil {
		logger.Warnf("[Boot] nats unavailable, cross-node kick disabled: %v", err)
	} else {
		defer func() { _ = nc.Close() }()
		s.SetKicker(natsx.NewKicker(nc, cfg.KickSubject, cfg.GatewayNodeId))
		if err := natsx.StartKickSubscriber(nc, s); err != nil {
			logger.Errorf("[Boot] kick subscriber failed: %v", err)
			os.Exit(1)
		}
	}

	s.Start()
	defer s.Shutdown()

	r := s.Router()
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Infof("[Boot] %s node=%s listening on %s", cfg.NodeType, cfg.GatewayNodeId, addr)
		if err := r.Run(addr); err != nil {
			logger.Errorf("[Boot] http server exit: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("[Boot] shutting down")
}
