package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"

	errs "IMProject/tools/errs"
)

// In-code 配置（不读 YAML）
type Config struct {
	Brokers               []string
	GroupID               string
	ProducerRetries       int
	ProducerCompression   string // none/snappy/lz4/zstd
	ConsumerInitialOffset string // newest/oldest
	KafkaVersion          sarama.KafkaVersion
}

// 默认配置（可直接改）
var Cfg = Config{
	Brokers:               []string{"127.0.0.1:9092"},
	GroupID:               "im-gateway-consumer",
	ProducerRetries:       5,
	ProducerCompression:   "snappy",
	ConsumerInitialOffset: "newest",
	KafkaVersion:          sarama.V2_1_0_0,
}

var (
	kafkaClient sarama.Client
	syncProd    sarama.SyncProducer
)

func BuildBaseConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = Cfg.KafkaVersion

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if Cfg.ProducerRetries <= 0 {
		Cfg.ProducerRetries = 1
	}
	cfg.Producer.Retry.Max = Cfg.ProducerRetries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // ★ 关键：Key 控制分区
	switch strings.ToLower(Cfg.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	// Consumer
	switch strings.ToLower(Cfg.ConsumerInitialOffset) {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

func InitKafkaClient(brokers []string) error {
	if len(brokers) > 0 {
		Cfg.Brokers = brokers
	}
	c, err := sarama.NewClient(Cfg.Brokers, BuildBaseConfig())
	if err != nil {
		return errs.ErrDependency.Wrap(err, "op", "kafka connect")
	}
	kafkaClient = c
	p, err := sarama.NewSyncProducerFromClient(c)
	if err != nil {
		return errs.ErrDependency.Wrap(err, "op", "kafka producer")
	}
	syncProd = p
	return nil
}

func CloseKafka() {
	if syncProd != nil {
		_ = syncProd.Close()
	}
	if kafkaClient != nil {
		_ = kafkaClient.Close()
	}
}

// SendBytes 同步写一条消息。Key 保证同一 userId 落同一分区，
// 下游回放时单用户的帧顺序不乱。
func SendBytes(topic, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	if _, _, err := syncProd.SendMessage(msg); err != nil {
		return errs.ErrDelivery.Wrap(err, "topic", topic)
	}
	return nil
}
