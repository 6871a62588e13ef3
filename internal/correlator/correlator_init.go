package correlator

import (
	"context"

	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/decision"
	"github.com/NexusBot-official/Nexus/internal/detectors"
	"github.com/NexusBot-official/Nexus/internal/forensics"
	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/metrics"
	"github.com/NexusBot-official/Nexus/internal/state"
)

type Options struct {
	Profiles   *config.ProfileStore
	Tracker    *state.Tracker
	Resolver   *forensics.Resolver
	Classifier *detectors.Classifier
	Engine     *decision.Engine
	Metrics    *metrics.Metrics
}

// NewCorrelator wires the keyed stores into one coordinator. The tracker
// defaults to the engine's and the classifier to a fresh one.
func NewCorrelator(opts Options) *Correlator {
	if opts.Classifier == nil {
		opts.Classifier = detectors.NewClassifier()
	}
	if opts.Tracker == nil {
		opts.Tracker = opts.Engine.Tracker()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Correlator{
		profiles:   opts.Profiles,
		tracker:    opts.Tracker,
		resolver:   opts.Resolver,
		classifier: opts.Classifier,
		engine:     opts.Engine,
		gate:       opts.Engine.Gate(),
		metrics:    opts.Metrics,
		health:     opts.Metrics.Health(),
		bg:         ctx,
		cancel:     cancel,
	}

	logging.Info("[CORRELATOR] Initialized")
	return c
}
