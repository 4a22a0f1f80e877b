// Command invalidate publishes one cache-busting event for every api
// instance consuming the invalidation topic.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/achintya924/Traffic-lyt/internal/invalidation"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	brokers := flag.String("brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "comma separated broker list")
	topic := flag.String("topic", getenv("KAFKA_TOPIC", "traffic-cache-invalidation"), "invalidation topic")
	cache := flag.String("cache", "all", "model|response|all")
	endpoint := flag.String("endpoint", "", "limit to one endpoint")
	prefix := flag.String("prefix", "", "raw key prefix")
	version := flag.Uint64("version", uint64(time.Now().UnixMilli()), "monotonic event version")
	source := flag.String("source", "cli", "who asked")
	flag.Parse()

	ev := invalidation.Event{
		Version:  *version,
		Cache:    *cache,
		Endpoint: *endpoint,
		Prefix:   *prefix,
		TS:       time.Now().UTC(),
		Source:   *source,
	}
	if err := publish(strings.Split(*brokers, ","), *topic, ev); err != nil {
		fmt.Fprintln(os.Stderr, "invalidate:", err)
		os.Exit(1)
	}
}

func publish(brokers []string, topic string, ev invalidation.Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("event: %w", err)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Version = sarama.V2_5_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	part, off, err := prod.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(ev.Target()),
		Value:     sarama.ByteEncoder(b),
		Timestamp: ev.TS,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Printf("published %s version=%d partition=%d offset=%d\n", ev.Target(), ev.Version, part, off)
	return nil
}
