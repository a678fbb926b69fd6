// Package schedule runs monitor targets on a cron loop driven by each
// query's configured frequency.
package schedule

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/MalasadaTech/masq-monitor/internal/logger"
	"github.com/MalasadaTech/masq-monitor/internal/query"
	"github.com/MalasadaTech/masq-monitor/internal/runner"
)

// TargetRunner executes one named target; satisfied by runner.Runner.
type TargetRunner interface {
	RunTarget(ctx context.Context, name string, opts runner.Options) runner.Outcome
}

// Store is the subset of the query store the scheduler reads.
type Store interface {
	QueryNames() []string
	GroupNames() []string
	GetQuery(name string) (*query.Query, bool)
	GetGroup(name string) (*query.Group, bool)
}

// frequencySpecs maps the analyst-facing frequency words onto cron
// descriptors. Anything else is treated as a raw cron expression.
var frequencySpecs = map[string]string{
	"hourly":  "@hourly",
	"daily":   "@daily",
	"weekly":  "@weekly",
	"monthly": "@monthly",
}

// Service schedules target runs. Jobs for distinct targets may overlap
// in time; the configuration write-back is serialized by the config
// layer, so overlapping commits stay safe within one process.
type Service struct {
	cron    *cron.Cron
	runner  TargetRunner
	store   Store
	opts    runner.Options
	logger  logger.Interface
	entries int
}

// New builds the scheduler over a runner and store. Options apply to
// every scheduled run.
func New(tr TargetRunner, store Store, opts runner.Options, log logger.Interface) *Service {
	if log == nil {
		log = logger.NewNoOp()
	}
	log = log.WithComponent("schedule")

	return &Service{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
		)),
		runner: tr,
		store:  store,
		opts:   opts,
		logger: log,
	}
}

// Register adds a cron entry for every query and group carrying a
// frequency. Entries with no frequency are skipped; an unparseable
// frequency fails registration so a typo is caught at startup rather
// than silently never firing.
func (s *Service) Register(ctx context.Context) error {
	for _, name := range s.store.QueryNames() {
		q, _ := s.store.GetQuery(name)
		if err := s.register(ctx, name, q.Frequency.Value); err != nil {
			return err
		}
	}
	for _, name := range s.store.GroupNames() {
		g, _ := s.store.GetGroup(name)
		if err := s.register(ctx, name, g.Frequency.Value); err != nil {
			return err
		}
	}

	s.logger.Info("Targets scheduled", "count", s.entries)
	return nil
}

func (s *Service) register(ctx context.Context, name, frequency string) error {
	spec := Spec(frequency)
	if spec == "" {
		return nil
	}

	target := name
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("Scheduled run starting", "target", target)
		outcome := s.runner.RunTarget(ctx, target, s.opts)
		if outcome.Err != nil {
			s.logger.Error("Scheduled run failed", "target", target, "error", outcome.Err)
			return
		}
		s.logger.Info("Scheduled run complete", "target", target, "results", outcome.Results)
	})
	if err != nil {
		return fmt.Errorf("scheduling %q (%s): %w", name, spec, err)
	}

	s.entries++
	return nil
}

// Spec translates a frequency value into a cron spec. Empty frequencies
// yield an empty spec, meaning the target is not scheduled.
func Spec(frequency string) string {
	freq := strings.ToLower(strings.TrimSpace(frequency))
	if freq == "" {
		return ""
	}
	if spec, ok := frequencySpecs[freq]; ok {
		return spec
	}
	return freq
}

// Entries reports how many targets were scheduled.
func (s *Service) Entries() int {
	return s.entries
}

// Start begins executing scheduled jobs.
func (s *Service) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Service) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}
