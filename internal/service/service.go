package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"posledger/backend/internal/cache"
	"posledger/backend/internal/domain"
	"posledger/backend/internal/events"
	"posledger/backend/internal/logger"
	"posledger/backend/internal/metrics"
	"posledger/backend/internal/store"
)

const defaultCommitRetries = 3

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func actorOrSystem(ctx context.Context) domain.Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok || strings.TrimSpace(actor.Username) == "" {
		return domain.Actor{Username: "system", DisplayName: "system", Role: "system"}
	}
	if actor.DisplayName == "" {
		actor.DisplayName = actor.Username
	}
	return actor
}

type Options struct {
	Location       *time.Location
	RefundPolicy   string
	CommitRetries  int
	Now            func() time.Time
	Logger         *logger.Logger
	Metrics        *metrics.LedgerMetrics
	Events         events.Publisher
	ReportCache    cache.ReportCache
	ReportCacheTTL time.Duration
}

// Service owns every ledger mutation in the process. Mutations are
// serialized locally and committed with version checks so other processes
// sharing the store are detected and retried against.
type Service struct {
	repo          store.LedgerStore
	mu            sync.Mutex
	loc           *time.Location
	now           func() time.Time
	refundPolicy  string
	commitRetries int
	log           *logger.Logger
	metrics       *metrics.LedgerMetrics
	events        events.Publisher
	reports       cache.ReportCache
	reportTTL     time.Duration
}

func New(repo store.LedgerStore, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RefundPolicy != domain.RefundPolicyPricePaid {
		opts.RefundPolicy = domain.RefundPolicyCurrentPrice
	}
	if opts.CommitRetries < 0 {
		opts.CommitRetries = 0
	}
	if opts.CommitRetries == 0 {
		opts.CommitRetries = defaultCommitRetries
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Events == nil {
		opts.Events = events.NoopPublisher{}
	}
	if opts.ReportCache == nil {
		opts.ReportCache = cache.NoopReportCache{}
	}
	if opts.ReportCacheTTL <= 0 {
		opts.ReportCacheTTL = 5 * time.Minute
	}

	return &Service{
		repo:          repo,
		loc:           opts.Location,
		now:           opts.Now,
		refundPolicy:  opts.RefundPolicy,
		commitRetries: opts.CommitRetries,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		events:        opts.Events,
		reports:       opts.ReportCache,
		reportTTL:     opts.ReportCacheTTL,
	}
}

func (s *Service) RefundPolicy() string {
	return s.refundPolicy
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) today() string {
	return s.clock().Format(domain.DateLayout)
}

func (s *Service) dateOf(t time.Time) string {
	return t.In(s.loc).Format(domain.DateLayout)
}

func parseDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	parsed, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return "", ErrInvalidDate
	}
	return parsed.Format(domain.DateLayout), nil
}

// mutateFunc edits snap in place and reports which collections it changed.
type mutateFunc func(snap *store.Snapshot) ([]store.Collection, error)

// mutate runs fn against a fresh snapshot and commits the result, checking
// the versions of reads plus every changed collection. fn may run more than
// once; it must derive everything from snap.
func (s *Service) mutate(ctx context.Context, op string, reads []store.Collection, fn mutateFunc) (*store.Snapshot, error) {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.commitWithRetry(ctx, op, reads, fn)
	s.metrics.ObserveDuration(op, time.Since(started))
	if err != nil {
		s.metrics.IncFailure(op)
		return nil, err
	}
	return snap, nil
}

func (s *Service) commitWithRetry(ctx context.Context, op string, reads []store.Collection, fn mutateFunc) (*store.Snapshot, error) {
	for attempt := 0; ; attempt++ {
		snap, err := s.repo.Snapshot(ctx)
		if err != nil {
			return nil, err
		}

		changed, err := fn(snap)
		if err != nil {
			return nil, err
		}
		if len(changed) == 0 {
			return snap, nil
		}

		base := make(store.Versions, len(reads)+len(changed))
		for _, c := range reads {
			base[c] = snap.Versions[c]
		}
		for _, c := range changed {
			base[c] = snap.Versions[c]
		}

		versions, err := s.repo.Commit(ctx, store.Commit{Base: base, Changed: changed, State: snap})
		if errors.Is(err, store.ErrStaleWrite) {
			s.metrics.IncConflict(op)
			if attempt < s.commitRetries {
				s.log.Event(ctx, zerolog.WarnLevel).
					Str("operation", op).
					Int("attempt", attempt+1).
					Msg("ledger changed underneath commit, retrying")
				continue
			}
			return nil, err
		}
		if err != nil {
			return nil, err
		}

		snap.Versions = versions
		s.publishChange(ctx, changed, versions)
		return snap, nil
	}
}

func (s *Service) publishChange(ctx context.Context, changed []store.Collection, versions store.Versions) {
	names := make([]string, 0, len(changed))
	for _, c := range changed {
		names = append(names, string(c))
	}
	slices.Sort(names)
	stamped := make(map[string]int64, len(versions))
	for c, v := range versions {
		stamped[string(c)] = v
	}

	event := events.Event{
		Type:        events.TypeLedgerChanged,
		Collections: names,
		Versions:    stamped,
		Actor:       actorOrSystem(ctx).Username,
		At:          s.now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Error(ctx, "publish ledger change", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entity string, entityID string, fields map[string]any) {
	actor := actorOrSystem(ctx)
	event := s.log.Event(ctx, zerolog.InfoLevel).
		Str("audit", action).
		Str("entity", entity).
		Str("entity_id", entityID).
		Str("actor", actor.Username).
		Str("actor_role", actor.Role)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg("ledger mutation committed")
}

func cashierKey(id string, name string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "unknown"
}
