package loader

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
)

// KafkaConfig configures the Kafka loader
type KafkaConfig struct {
	Brokers   []string `mapstructure:"brokers"`
	Topic     string   `mapstructure:"topic"`
	Partition int32    `mapstructure:"partition"`
	// Format is json (one object per message) or raw (key, value, offset)
	Format  string        `mapstructure:"format"`
	Columns []string      `mapstructure:"columns"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Kafka snapshots one topic partition: it reads every message between the
// oldest offset and the high-water mark observed when loading starts.
type Kafka struct {
	cfg KafkaConfig
}

func newKafka(options map[string]interface{}) (Loader, error) {
	cfg := KafkaConfig{Format: "json", Timeout: 30 * time.Second}
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "kafka: brokers and topic are required")
	}
	switch cfg.Format {
	case "json", "raw":
	default:
		return nil, errors.Newf(errors.ErrorTypeValidation, "kafka: format must be json or raw, got %q", cfg.Format)
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "kafka: timeout must be positive")
	}
	return &Kafka{cfg: cfg}, nil
}

func (l *Kafka) Name() string { return "kafka(" + l.cfg.Topic + ")" }

func (l *Kafka) Load(ctx context.Context) (*models.Table, error) {
	sc := sarama.NewConfig()
	sc.ClientID = "stratus"
	sc.Consumer.Return.Errors = true
	sc.Net.DialTimeout = l.cfg.Timeout

	client, err := sarama.NewClient(l.cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "kafka: failed to create client")
	}
	defer client.Close()

	oldest, err := client.GetOffset(l.cfg.Topic, l.cfg.Partition, sarama.OffsetOldest)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "kafka: failed to read oldest offset")
	}
	newest, err := client.GetOffset(l.cfg.Topic, l.cfg.Partition, sarama.OffsetNewest)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "kafka: failed to read newest offset")
	}
	if newest <= oldest {
		return tableFromMaps(nil, l.columns())
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "kafka: failed to create consumer")
	}
	defer consumer.Close()

	pc, err := consumer.ConsumePartition(l.cfg.Topic, l.cfg.Partition, oldest)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "kafka: failed to consume partition")
	}
	defer pc.Close()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	records := make([]map[string]interface{}, 0, newest-oldest)
	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "kafka: partition snapshot did not complete")
		case cerr := <-pc.Errors():
			return nil, errors.Wrap(cerr, errors.ErrorTypeIO, "kafka: consumer error")
		case msg := <-pc.Messages():
			rec, err := l.decode(msg)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
			if msg.Offset >= newest-1 {
				return tableFromMaps(records, l.columns())
			}
		}
	}
}

func (l *Kafka) columns() []string {
	if len(l.cfg.Columns) == 0 && l.cfg.Format == "raw" {
		return []string{"key", "value", "offset"}
	}
	return l.cfg.Columns
}

func (l *Kafka) decode(msg *sarama.ConsumerMessage) (map[string]interface{}, error) {
	if l.cfg.Format == "raw" {
		return map[string]interface{}{
			"key":    string(msg.Key),
			"value":  string(msg.Value),
			"offset": msg.Offset,
		}, nil
	}
	var rec map[string]interface{}
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "kafka: message is not a JSON object").
			WithDetail("offset", msg.Offset)
	}
	return rec, nil
}
