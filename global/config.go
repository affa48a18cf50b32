package global

import (
	redis "IMProject/service/storage/redis"
	"IMProject/tools"
	ids "IMProject/tools/ids"
)

// ConfigAll 启动初始化：env 覆盖内置默认值，再拉起各基础设施
func ConfigAll(cfg *AppConfig) error {
	applyEnv(cfg)
	ConfigIds()
	return ConfigRedis(cfg)
}

// 部署参数全部走环境变量，容器里不带配置文件
func applyEnv(cfg *AppConfig) {
	cfg.GatewayNodeId = tools.GetEnv("GATEWAY_NODE_ID", cfg.GatewayNodeId)
	cfg.Port = tools.GetEnvInt("GATEWAY_PORT", cfg.Port)
	cfg.RedisAddr = tools.GetEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = tools.GetEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = tools.GetEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.KafkaBrokers = tools.GetEnvList("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.NatsServers = tools.GetEnvList("NATS_SERVERS", cfg.NatsServers)
	cfg.MultiDevice = tools.GetEnvBool("MULTI_DEVICE", cfg.MultiDevice)
}

func ConfigIds() {
	ids.SetNodeID(int64(tools.GetEnvInt("SNOWFLAKE_NODE_ID", 100)))
}

func GetJwtSecret() []byte {
	return []byte(tools.GetEnv("JWT_SECRET", "mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o="))
}

func ConfigRedis(cfg *AppConfig) error {
	config := redis.Config{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
	}
	return redis.InitRedis(config)
}
