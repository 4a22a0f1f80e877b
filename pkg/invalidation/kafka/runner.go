package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/achintya924/Traffic-lyt/internal/invalidation"
)

const source = "kafka"

// Runner consumes cache-busting events and applies them to the local caches.
type Runner struct {
	log      *slog.Logger
	cfg      InvalidationConfig
	inv      invalidation.Invalidator
	ms       *metricSet
	ver      *versionDedupe
	now      func() time.Time
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
	// DedupeSize bounds how many targets keep a last-seen version.
	DedupeSize int
	Now        func() time.Time
}

func New(cfg InvalidationConfig, inv invalidation.Invalidator, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		log:    opts.Logger,
		cfg:    cfg,
		inv:    inv,
		ms:     newMetricSet(opts.Register),
		ver:    newVersionDedupe(opts.DedupeSize),
		now:    opts.Now,
		assign: map[int32]struct{}{},
	}
}

func (r *Runner) Enabled() bool {
	return r.cfg.Driver == DriverKafka && r.cfg.Enabled
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.Enabled() {
		r.log.Info("invalidation runner disabled", "driver", r.cfg.Driver, "enabled", r.cfg.Enabled)
		return nil
	}
	if r.inv == nil {
		return errors.New("kafka runner: invalidator dependency is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg, err := r.cfg.saramaConfig()
	if err != nil {
		cancel()
		return err
	}

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(true)
			r.assign = map[int32]struct{}{}
			for _, parts := range sess.Claims() {
				for _, p := range parts {
					r.assign[p] = struct{}{}
				}
			}
			r.assignMu.Unlock()
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(false)
			r.assign = map[int32]struct{}{}
			r.assignMu.Unlock()
		},
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("kafka invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("kafka invalidation runner stopped")
}

// Readiness reports whether the group currently owns partitions. A
// disabled runner never holds the instance back.
func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.Enabled() {
		return true, nil
	}
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

// Malformed events are counted and skipped; returning an error would stall
// the partition on a poison message.
func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := r.now()

	if !msg.Timestamp.IsZero() {
		r.ms.lag.Set(start.Sub(msg.Timestamp).Seconds())
	}

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		r.log.WarnContext(ctx, "invalidation decode failed", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		r.log.WarnContext(ctx, "invalidation event rejected", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if ev.Version > 0 && !r.ver.shouldApply(ev.Target(), ev.Version) {
		r.ms.msgs.WithLabelValues("skip_version").Inc()
		return nil
	}

	src := source
	if ev.Source != "" {
		src = source + ":" + ev.Source
	}
	out, err := invalidation.Apply(r.inv, ev, src)
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		r.log.WarnContext(ctx, "invalidation apply failed", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	r.ms.msgs.WithLabelValues("ok").Inc()
	r.ms.apply.WithLabelValues("model").Add(float64(out.Model))
	r.ms.apply.WithLabelValues("response").Add(float64(out.Response))
	r.ms.proc.Observe(r.now().Sub(start).Seconds())
	r.log.DebugContext(ctx, "invalidation applied",
		"cache", ev.Cache,
		"endpoint", ev.Endpoint,
		"prefix", ev.Prefix,
		"version", ev.Version,
		"model", out.Model,
		"response", out.Response)
	return nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
