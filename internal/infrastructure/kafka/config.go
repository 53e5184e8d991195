package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

const (
	HeaderEventID     = "event-id"
	HeaderContentType = "content-type"
)

type Config struct {
	Brokers      []string
	GroupID      string
	ClientID     string
	CatalogTopic string
}

// NewSaramaConfig returns the client settings shared by the producer and the consumer group.
// The hash partitioner keeps every event of one order on one partition.
func NewSaramaConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Net.DialTimeout = 5 * time.Second

	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Producer.Retry.Max = 3

	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true
	return cfg
}

func NewSyncProducer(c Config) (sarama.SyncProducer, error) {
	return sarama.NewSyncProducer(c.Brokers, NewSaramaConfig(c.ClientID))
}

func NewGroup(c Config) (sarama.ConsumerGroup, error) {
	return sarama.NewConsumerGroup(c.Brokers, c.GroupID, NewSaramaConfig(c.ClientID))
}
