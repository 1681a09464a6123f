// pubsub.go: downstream distribution backends for cache updates
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Backend abstracts pub/sub for downstream quote consumers. Redis suits
// low-latency local fan-out, Kafka durable streams, NATS lightweight
// subject-based routing. Publishing is best-effort from the caller's side:
// the quote cache stays the source of truth.
type Backend interface {
	Publish(ctx context.Context, channel string, msg interface{}) error
	Subscribe(ctx context.Context, channel string, handler func([]byte)) error
	Close() error
}

// Noop discards everything; used when distribution is disabled.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) Publish(context.Context, string, interface{}) error    { return nil }
func (*Noop) Subscribe(context.Context, string, func([]byte)) error { return nil }
func (*Noop) Close() error                                          { return nil }

// RedisBackend implements Backend on Redis channels.
type RedisBackend struct {
	client *redis.Client
}

func NewRedis(addr string) *RedisBackend {
	return &RedisBackend{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
	}
}

func (r *RedisBackend) Publish(ctx context.Context, channel string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

func (r *RedisBackend) Subscribe(ctx context.Context, channel string, handler func([]byte)) error {
	sub := r.client.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for msg := range ch {
			handler([]byte(msg.Payload))
		}
	}()
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// KafkaBackend implements Backend on one Kafka topic, keyed by channel so
// per-symbol ordering survives partitioning.
type KafkaBackend struct {
	writer *kafka.Writer
	reader *kafka.Reader
	logger *zap.Logger
}

func NewKafka(brokers []string, topic, groupID string, logger *zap.Logger) *KafkaBackend {
	return &KafkaBackend{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		logger: logger.Named("kafka-pubsub"),
	}
}

func (k *KafkaBackend) Publish(ctx context.Context, channel string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(channel),
		Value: data,
	})
}

func (k *KafkaBackend) Subscribe(ctx context.Context, channel string, handler func([]byte)) error {
	go func() {
		for {
			m, err := k.reader.ReadMessage(ctx)
			if err != nil {
				k.logger.Warn("Kafka read stopped", zap.Error(err))
				return
			}
			handler(m.Value)
		}
	}()
	return nil
}

func (k *KafkaBackend) Close() error {
	werr := k.writer.Close()
	rerr := k.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// NATSBackend implements Backend on NATS subjects; channels map directly to
// subjects (dot-separated).
type NATSBackend struct {
	nc *nats.Conn
}

func NewNATS(url string) (*NATSBackend, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &NATSBackend{nc: nc}, nil
}

func (n *NATSBackend) Publish(ctx context.Context, channel string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.nc.Publish(channel, data)
}

func (n *NATSBackend) Subscribe(ctx context.Context, channel string, handler func([]byte)) error {
	sub, err := n.nc.Subscribe(channel, func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func (n *NATSBackend) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}

// New builds the backend named by kind: "redis", "kafka", "nats", or "none".
func New(kind, redisAddr string, kafkaBrokers []string, kafkaTopic, natsURL string, logger *zap.Logger) (Backend, error) {
	switch kind {
	case "", "none":
		return NewNoop(), nil
	case "redis":
		return NewRedis(redisAddr), nil
	case "kafka":
		return NewKafka(kafkaBrokers, kafkaTopic, "quotefeed", logger), nil
	case "nats":
		return NewNATS(natsURL)
	default:
		return nil, fmt.Errorf("unknown pubsub backend %q", kind)
	}
}
