package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/detectors"
	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/metrics"
	"github.com/NexusBot-official/Nexus/internal/models"
	"github.com/NexusBot-official/Nexus/internal/state"
)

var ErrNotLocked = errors.New("guild is not in lockdown")

const (
	DefaultCooldown    = 5 * time.Minute
	DefaultCallTimeout = 10 * time.Second
)

type Options struct {
	Platform Platform
	Tracker  *state.Tracker
	States   *state.SecurityStore
	Profiles *config.ProfileStore
	Records  RecordStore
	Sink     Sink
	Metrics  *metrics.Metrics
	Logger   *DecisionLogger

	// Cooldown keeps an actor from being stripped or banned twice.
	Cooldown time.Duration
	// CallTimeout bounds every platform call made while mitigating.
	CallTimeout time.Duration
	Now         func() time.Time
}

// Outcome is the result of evaluating one event.
type Outcome struct {
	Status     state.Status
	Transition bool
	Trigger    models.Trigger
	Records    []models.MitigationRecord
}

// Engine escalates guilds from Normal to Monitoring to Lockdown and issues
// the mitigations that go with each step. Lockdown is only left via Unlock.
type Engine struct {
	platform Platform
	tracker  *state.Tracker
	states   *state.SecurityStore
	profiles *config.ProfileStore
	records  RecordStore
	sink     Sink
	metrics  *metrics.Metrics
	logger   *DecisionLogger
	cooldown *CooldownManager
	echoes   *echoSet

	callTimeout time.Duration
	now         func() time.Time
}

func NewEngine(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Records == nil {
		opts.Records = nopStore{}
	}
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = NewDecisionLogger(nil)
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.States == nil {
		opts.States = state.NewSecurityStore(opts.Now)
	}
	if opts.Tracker == nil {
		opts.Tracker = state.NewTracker(state.TrackerOptions{Now: opts.Now})
	}

	return &Engine{
		platform:    opts.Platform,
		tracker:     opts.Tracker,
		states:      opts.States,
		profiles:    opts.Profiles,
		records:     opts.Records,
		sink:        opts.Sink,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		cooldown:    NewCooldownManager(opts.Cooldown, opts.Now),
		echoes:      newEchoSet(opts.Now),
		callTimeout: opts.CallTimeout,
		now:         opts.Now,
	}
}

func (e *Engine) States() *state.SecurityStore {
	return e.states
}

func (e *Engine) Tracker() *state.Tracker {
	return e.tracker
}

// callContext detaches mitigation calls from the event's context so a
// finished handler cannot cancel them halfway, and bounds each call.
func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout)
}

// finish logs, counts and persists one mitigation record.
func (e *Engine) finish(rec models.MitigationRecord) models.MitigationRecord {
	e.logger.Record(rec)
	e.metrics.Mitigation(string(rec.Action), rec.Failed())
	if err := e.records.SaveRecord(context.Background(), rec); err != nil {
		logging.Error("[DECISION] Failed to save mitigation record %s: %v", rec.ID, err)
	}
	return rec
}

func (e *Engine) counts(ev models.ActionEvent, p config.Policy) counts {
	if !ev.Attributed() {
		return counts{unattributed: e.tracker.UnattributedCount(ev.GuildID, ev.Type, p.UnattributedWindow)}
	}
	return counts{
		soft: e.tracker.Count(ev.GuildID, ev.ActorID, p.SoftWindow),
		hard: e.tracker.Count(ev.GuildID, ev.ActorID, p.HardWindow),
	}
}

// Evaluate checks the guild's thresholds after ev has been tracked and
// escalates when one is crossed.
func (e *Engine) Evaluate(ctx context.Context, ev models.ActionEvent, v detectors.Verdict) Outcome {
	policy := e.profiles.Policy(ev.GuildID)
	if !policy.Enabled || e.profiles.IsExempt(ev.GuildID, ev.ActorID) {
		return Outcome{Status: e.states.Get(ev.GuildID).Status}
	}

	a := assess(policy, e.counts(ev, policy), v, ev.Type)
	switch a.level {
	case levelLockdown:
		return e.lockdown(ctx, ev, a.trigger, a.reason)
	case levelMonitoring:
		if e.states.EnterMonitoring(ev.GuildID, ev.ActorID, a.reason) {
			e.logger.Transition(ev.GuildID, state.StatusMonitoring, ev.ActorID, a.trigger, a.reason)
			e.sink.Notify(ctx, e.incident(models.NotifyMonitoring, ev.GuildID, ev.ActorID, a.trigger, a.reason, nil))
			return Outcome{Status: state.StatusMonitoring, Transition: true, Trigger: a.trigger}
		}
	}
	return Outcome{Status: e.states.Get(ev.GuildID).Status, Trigger: a.trigger}
}

// Instant locks the guild down for an event the classifier flagged as an
// outright raid, without waiting for attribution or counts.
func (e *Engine) Instant(ctx context.Context, ev models.ActionEvent, v detectors.Verdict) Outcome {
	if !e.profiles.IsEnabled(ev.GuildID) || e.profiles.IsExempt(ev.GuildID, ev.ActorID) {
		return Outcome{Status: e.states.Get(ev.GuildID).Status}
	}
	return e.lockdown(ctx, ev, models.TriggerHeuristic, v.Reason)
}

// burst lists the revertible actions behind ev inside the hard window,
// always including ev's own target. When before is set only actions older
// than it are returned.
func (e *Engine) burst(ev models.ActionEvent, p config.Policy, before time.Time) []state.Entry {
	key := ev.ActorID
	if key == "" {
		key = state.UnattributedKey(ev.Type)
	}
	entries := append(e.tracker.Entries(ev.GuildID, key, p.HardWindow),
		state.Entry{At: ev.At, Type: ev.Type, TargetID: ev.TargetID, EventID: ev.ID})

	seen := make(map[string]struct{}, len(entries))
	out := entries[:0]
	for _, en := range entries {
		if !en.Type.Revertible() || en.TargetID == "" {
			continue
		}
		if !before.IsZero() && !en.At.Before(before) {
			continue
		}
		k := en.Type.String() + ":" + en.TargetID
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, en)
	}
	return out
}

func (e *Engine) revertBurst(ctx context.Context, ev models.ActionEvent, p config.Policy, trigger models.Trigger, reason string, before time.Time) []models.MitigationRecord {
	var recs []models.MitigationRecord
	for _, en := range e.burst(ev, p, before) {
		cctx, cancel := e.callContext(ctx)
		rec := e.undo(cctx, ev.GuildID, ev.ActorID, en.Type, en.TargetID, trigger, reason, false)
		cancel()
		recs = append(recs, e.finish(rec))
	}
	return recs
}

func (e *Engine) lockGuild(ctx context.Context, guildID, actorID string, trigger models.Trigger, reason string) models.MitigationRecord {
	cctx, cancel := e.callContext(ctx)
	defer cancel()

	// The @everyone role shares the guild's id.
	var prev int64
	err := e.mutate(guildID, models.ActionRoleUpdate, guildID, func() error {
		var lerr error
		prev, lerr = e.platform.LockGuild(cctx, guildID, banReason(reason))
		return lerr
	})
	if err == nil {
		e.states.SaveEveryonePermissions(guildID, prev)
	}
	return e.finish(models.NewMitigationRecord(guildID, actorID, guildID, models.MitigationGuildLocked, trigger, reason).WithError(err))
}

func (e *Engine) lockdown(ctx context.Context, ev models.ActionEvent, trigger models.Trigger, reason string) Outcome {
	policy := e.profiles.Policy(ev.GuildID)

	if !e.states.EnterLockdown(ev.GuildID, ev.ActorID, reason) {
		// Already locked: clean up what this actor did before the lockdown
		// and mitigate them, without a second transition.
		started := e.states.Get(ev.GuildID).LockdownStartedAt
		recs := e.revertBurst(ctx, ev, policy, trigger, reason, started)
		recs = append(recs, e.mitigateActor(ctx, ev.GuildID, ev.ActorID, trigger, reason)...)
		if len(recs) > 0 {
			e.sink.Notify(ctx, e.incident(models.NotifyMitigation, ev.GuildID, ev.ActorID, trigger, reason, recs))
		}
		return Outcome{Status: state.StatusLockdown, Trigger: trigger, Records: recs}
	}

	logging.Critical("[DECISION] Lockdown of guild %s (%s): %s", ev.GuildID, trigger, reason)
	e.logger.Transition(ev.GuildID, state.StatusLockdown, ev.ActorID, trigger, reason)
	e.metrics.Lockdown(string(trigger))

	recs := e.revertBurst(ctx, ev, policy, trigger, reason, time.Time{})
	recs = append(recs, e.mitigateActor(ctx, ev.GuildID, ev.ActorID, trigger, reason)...)
	recs = append(recs, e.lockGuild(ctx, ev.GuildID, ev.ActorID, trigger, reason))

	if err := e.records.SaveLockdown(context.WithoutCancel(ctx), e.states.Get(ev.GuildID)); err != nil {
		logging.Error("[DECISION] Failed to persist lockdown of %s: %v", ev.GuildID, err)
	}
	e.sink.Notify(ctx, e.incident(models.NotifyLockdown, ev.GuildID, ev.ActorID, trigger, reason, recs))

	return Outcome{Status: state.StatusLockdown, Transition: true, Trigger: trigger, Records: recs}
}

// Annotate attaches a late attribution to records written before the actor
// was known, and applies the per-actor mitigation that had to wait for it.
func (e *Engine) Annotate(ctx context.Context, guildID string, recordIDs []string, actorID string) []models.MitigationRecord {
	if actorID == "" {
		return nil
	}
	if len(recordIDs) > 0 {
		if err := e.records.AnnotateRecords(context.WithoutCancel(ctx), guildID, recordIDs, actorID); err != nil {
			logging.Error("[DECISION] Failed to annotate %d records in %s: %v", len(recordIDs), guildID, err)
		}
	}

	// Only the actor behind the lockdown, or any actor when the lockdown
	// is still unattributed, is mitigated here.
	st := e.states.Get(guildID)
	if !st.Locked() || e.profiles.IsExempt(guildID, actorID) {
		return nil
	}
	if st.TriggeringActorID != "" && st.TriggeringActorID != actorID {
		return nil
	}
	if e.states.AttributeLockdown(guildID, actorID) {
		if err := e.records.SaveLockdown(context.WithoutCancel(ctx), e.states.Get(guildID)); err != nil {
			logging.Error("[DECISION] Failed to persist lockdown of %s: %v", guildID, err)
		}
	}

	reason := fmt.Sprintf("late attribution of %d mitigated events", len(recordIDs))
	recs := e.mitigateActor(ctx, guildID, actorID, models.TriggerLate, reason)
	if len(recs) > 0 {
		e.sink.Notify(ctx, e.incident(models.NotifyMitigation, guildID, actorID, models.TriggerLate, reason, recs))
	}
	return recs
}

// Unlock returns a locked guild to Normal, restoring the @everyone permissions
// saved at lockdown. The state changes even when the restore call fails; the
// error is returned for the operator.
func (e *Engine) Unlock(ctx context.Context, guildID, by string) error {
	prev, ok := e.states.Unlock(guildID)
	if !ok {
		return ErrNotLocked
	}

	var err error
	if prev.PermissionsSaved {
		cctx, cancel := e.callContext(ctx)
		uerr := e.mutate(guildID, models.ActionRoleUpdate, guildID, func() error {
			return e.platform.UnlockGuild(cctx, guildID, prev.EveryonePermissions, banReason("lockdown lifted by "+by))
		})
		if uerr != nil {
			err = fmt.Errorf("restore @everyone permissions: %w", uerr)
		}
		cancel()
	}

	e.tracker.ResetGuild(guildID)
	e.cooldown.Reset(guildID)
	if cerr := e.records.ClearLockdown(context.WithoutCancel(ctx), guildID); cerr != nil {
		logging.Error("[DECISION] Failed to clear persisted lockdown of %s: %v", guildID, cerr)
	}

	reason := fmt.Sprintf("lockdown lifted by %s after %s", by, e.now().Sub(prev.LockdownStartedAt).Round(time.Second))
	logging.Info("[DECISION] Guild %s unlocked by %s", guildID, by)
	e.logger.Transition(guildID, state.StatusNormal, by, "", reason)
	e.sink.Notify(ctx, e.incident(models.NotifyUnlock, guildID, by, "", reason, nil))
	return err
}

// Decay returns quiet Monitoring guilds to Normal and reports how many moved.
func (e *Engine) Decay() int {
	n := 0
	for _, guildID := range e.states.Guilds(state.StatusMonitoring) {
		if e.states.Decay(guildID, e.profiles.Policy(guildID).MonitoringCooldown) {
			e.logger.Transition(guildID, state.StatusNormal, "", "", "monitoring cooled down")
			n++
		}
	}
	return n
}

// Gate returns the lockdown gate sharing this engine's state and platform.
func (e *Engine) Gate() *Gate {
	return &Gate{engine: e}
}
