package logger

import (
	"context"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	SampleN   int
	Service   string
	Component string
}

type ctxKey string

const (
	ctxReqIDKey  ctxKey = "request_id"
	ctxComponent ctxKey = "component"
	ctxOutcome   ctxKey = "outcome"
)

func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return context.WithValue(ctx, ctxReqIDKey, reqID)
}

func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxComponent, component)
}

func RequestID(ctx context.Context) string {
	if s, ok := ctx.Value(ctxReqIDKey).(string); ok {
		return s
	}
	return ""
}

// NewID returns a 32 char hex request id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Outcome collects per-request cache and admission results so the
// completion log line can report them. It is written by handlers deeper in
// the chain than the middleware that logs it.
type Outcome struct {
	mu            sync.Mutex
	responseCache *bool
	modelCache    *bool
	rateLimited   bool
}

func WithOutcome(ctx context.Context) (context.Context, *Outcome) {
	o := &Outcome{}
	return context.WithValue(ctx, ctxOutcome, o), o
}

// OutcomeFrom returns the request outcome or nil; all methods accept a nil receiver.
func OutcomeFrom(ctx context.Context) *Outcome {
	o, _ := ctx.Value(ctxOutcome).(*Outcome)
	return o
}

func (o *Outcome) SetResponseCache(hit bool) {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.responseCache = &hit
	o.mu.Unlock()
}

func (o *Outcome) SetModelCache(hit bool) {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.modelCache = &hit
	o.mu.Unlock()
}

func (o *Outcome) SetRateLimited() {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.rateLimited = true
	o.mu.Unlock()
}

// Fields returns only what was recorded.
func (o *Outcome) Fields() map[string]bool {
	out := map[string]bool{}
	if o == nil {
		return out
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.responseCache != nil {
		out["response_cache_hit"] = *o.responseCache
	}
	if o.modelCache != nil {
		out["model_cache_hit"] = *o.modelCache
	}
	if o.rateLimited {
		out["rate_limited"] = true
	}
	return out
}

func safeUint32(n int) uint32 {
	if n <= 0 {
		return 0
	}
	if n > int(math.MaxUint32) {
		return math.MaxUint32
	}
	return uint32(n)
}

func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	base := zerolog.New(out)

	if cfg.SampleN > 0 {
		n := safeUint32(cfg.SampleN)
		if n > 0 {
			base = base.Sample(&zerolog.BasicSampler{N: n})
		}
	}

	lvl := strings.ToLower(strings.TrimSpace(cfg.Level))
	switch lvl {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx := base.With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return ctx.Logger()
}

// returns a child logger with context fields applied
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	var base zerolog.Logger
	if parent == nil {
		base = zerolog.New(io.Discard)
	} else {
		base = *parent
	}
	w := base.With()
	if v := ctx.Value(ctxReqIDKey); v != nil {
		if s, ok := v.(string); ok && s != "" {
			w = w.Str("request_id", s)
		}
	}
	if v := ctx.Value(ctxComponent); v != nil {
		if s, ok := v.(string); ok && s != "" {
			w = w.Str("component", s)
		}
	}
	l := w.Logger()
	return &l
}
