package notifier

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/models"
)

// Sink mirrors decision.Sink so this package does not import the engine.
type Sink interface {
	Notify(ctx context.Context, n models.Notification)
}

// LogSink writes each notification as one structured log line.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = logging.L()
	}
	return &LogSink{log: log.Named("notify")}
}

func (l *LogSink) Notify(_ context.Context, n models.Notification) {
	fields := []zap.Field{
		zap.String("kind", string(n.Kind)),
		zap.String("severity", n.Severity.String()),
		zap.String("guild", n.GuildID),
		zap.String("actor", n.ActorID),
		zap.String("trigger", string(n.Trigger)),
		zap.Int("records", len(n.Records)),
		zap.Int("failures", len(n.Failures())),
	}
	switch n.Severity {
	case models.SeverityCritical:
		l.log.Error(n.Reason, fields...)
	case models.SeverityWarning:
		l.log.Warn(n.Reason, fields...)
	default:
		l.log.Info(n.Reason, fields...)
	}
}

// Fanout delivers every notification to all sinks, each on its own
// goroutine, and returns immediately.
type Fanout struct {
	sinks []Sink
	wg    sync.WaitGroup
}

func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Notify(ctx context.Context, n models.Notification) {
	ctx = context.WithoutCancel(ctx)
	for _, s := range f.sinks {
		f.wg.Add(1)
		go func(s Sink) {
			defer f.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logging.Error("[NOTIFIER] Panic in sink %T: %v", s, r)
				}
			}()
			s.Notify(ctx, n)
		}(s)
	}
}

// Wait blocks until every in-flight delivery has returned.
func (f *Fanout) Wait() {
	f.wg.Wait()
}
