package kafka

import (
	"testing"

	"github.com/IBM/sarama"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("INVALIDATION_ENABLED", "true")
	t.Setenv("INVALIDATION_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("KAFKA_SASL_USERNAME", "svc")

	cfg := FromEnv()
	if !cfg.Enabled || cfg.Driver != DriverKafka {
		t.Fatalf("cfg=%+v", cfg)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers=%v", cfg.Brokers)
	}
	if cfg.Topic != "traffic-cache-invalidation" || !cfg.SASL.Enable {
		t.Fatalf("topic=%q sasl=%+v", cfg.Topic, cfg.SASL)
	}
}

func TestSaramaConfig(t *testing.T) {
	base := InvalidationConfig{
		SessionTimeout:   FromEnv().SessionTimeout,
		Heartbeat:        FromEnv().Heartbeat,
		RebalanceTimeout: FromEnv().RebalanceTimeout,
	}

	cfg, err := base.saramaConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Consumer.Offsets.Initial != sarama.OffsetNewest || cfg.Net.SASL.Enable {
		t.Fatalf("unexpected defaults")
	}

	withSASL := base
	withSASL.SASL = SASLConfig{Enable: true, Username: "u", Password: "p"}
	cfg, err = withSASL.saramaConfig()
	if err != nil || cfg.Net.SASL.Mechanism != sarama.SASLTypePlaintext {
		t.Fatalf("sasl cfg err=%v", err)
	}

	withSASL.SASL.Mechanism = "GSSAPI"
	if _, err := withSASL.saramaConfig(); err == nil {
		t.Fatalf("unsupported mechanism accepted")
	}

	withTLS := base
	withTLS.TLS = TLSConfig{Enable: true, CaFile: "/does/not/exist.pem"}
	if _, err := withTLS.saramaConfig(); err == nil {
		t.Fatalf("missing CA file accepted")
	}
}
