package engine

import (
	"context"
	"time"

	"github.com/rzbill/vary/internal/experiment"
	"github.com/rzbill/vary/internal/metrics"
	"github.com/rzbill/vary/internal/store"
	logpkg "github.com/rzbill/vary/pkg/log"
)

// Context carries per-request targeting inputs supplied by the caller.
// RolloutKey is a stable per-subject or per-session identifier used for
// percentage rollouts; when empty the subject id is used. Attributes is a
// schema-free payload available to audience rules.
type Context struct {
	UserType   string                 `json:"userType,omitempty"`
	Location   string                 `json:"location,omitempty"`
	RolloutKey string                 `json:"rolloutKey,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Options configures an Engine.
type Options struct {
	Logger logpkg.Logger
	// Disabled is the kill switch: every Assign returns no assignment
	// without consulting the catalog.
	Disabled bool
	// TTL is the sticky-assignment lifetime (default 30 days).
	TTL time.Duration
	// StoreTimeout bounds each store operation on the assign path
	// (default 50ms). Store failures degrade to an unpersisted assignment.
	StoreTimeout time.Duration
	// Now and Bucket are injectable for tests.
	Now    func() time.Time
	Bucket func(key string) int
}

// Engine computes variant assignments. Aside from the single store write
// when a fresh assignment is persisted, resolution is a pure function of
// the catalog snapshot and its inputs. Each Engine owns its injected
// catalog and store; there is no process-wide state.
type Engine struct {
	catalog      *experiment.Catalog
	store        store.Store
	logger       logpkg.Logger
	disabled     bool
	ttl          time.Duration
	storeTimeout time.Duration
	now          func() time.Time
	bucket       func(key string) int
}

// New creates an Engine over the given catalog and assignment store.
func New(catalog *experiment.Catalog, st store.Store, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}
	storeTimeout := opts.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = 50 * time.Millisecond
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	bucket := opts.Bucket
	if bucket == nil {
		bucket = Bucket
	}
	return &Engine{
		catalog:      catalog,
		store:        st,
		logger:       logger.With(logpkg.Component("engine")),
		disabled:     opts.Disabled,
		ttl:          ttl,
		storeTimeout: storeTimeout,
		now:          now,
		bucket:       bucket,
	}
}

// Assign resolves the variant for (experimentID, subjectID). ok=false means
// no assignment: unknown/inactive experiment, ineligible subject, or kill
// switch. It is never an error; callers fall back to the default experience.
func (e *Engine) Assign(ctx context.Context, experimentID, subjectID string, reqCtx Context) (string, bool) {
	a, ok := e.Resolve(ctx, experimentID, subjectID, reqCtx)
	if !ok {
		return "", false
	}
	return a.VariantID, true
}

// Resolve is Assign returning the full assignment record.
func (e *Engine) Resolve(ctx context.Context, experimentID, subjectID string, reqCtx Context) (store.Assignment, bool) {
	if e.disabled {
		metrics.AssignmentMisses.WithLabelValues(metrics.ReasonDisabled).Inc()
		return store.Assignment{}, false
	}
	exp, ok := e.catalog.Get(experimentID)
	if !ok {
		metrics.AssignmentMisses.WithLabelValues(metrics.ReasonNotFound).Inc()
		return store.Assignment{}, false
	}
	now := e.now()
	if !exp.ActiveAt(now) {
		metrics.AssignmentMisses.WithLabelValues(metrics.ReasonInactive).Inc()
		return store.Assignment{}, false
	}
	if !e.eligible(exp, subjectID, reqCtx) {
		return store.Assignment{}, false
	}

	// Sticky check: an existing unexpired record wins over recomputation,
	// regardless of current allocations.
	gctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	existing, found, err := e.store.Get(gctx, experimentID, subjectID)
	cancel()
	if err != nil {
		metrics.StoreFailures.WithLabelValues("get").Inc()
		e.logger.Warn("assignment store read failed, computing fresh",
			logpkg.Str("experiment", experimentID), logpkg.Err(err))
	}
	if found {
		metrics.AssignmentsTotal.WithLabelValues(experimentID, existing.VariantID, "sticky").Inc()
		return existing, true
	}

	variantID := e.selectVariant(exp, subjectID)
	a := store.Assignment{
		ExperimentID: experimentID,
		SubjectID:    subjectID,
		VariantID:    variantID,
		AssignedAt:   now,
		ExpiresAt:    now.Add(e.ttl),
	}
	sctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	err = e.store.Set(sctx, a)
	cancel()
	if err != nil {
		// Fail soft: trade perfect stickiness for availability.
		metrics.StoreFailures.WithLabelValues("set").Inc()
		e.logger.Warn("assignment not persisted",
			logpkg.Str("experiment", experimentID), logpkg.Str("variant", variantID), logpkg.Err(err))
	}
	metrics.AssignmentsTotal.WithLabelValues(experimentID, variantID, "fresh").Inc()
	return a, true
}

// VariantConfig returns the opaque config map for an already-resolved
// variant. Pure lookup, no side effects.
func (e *Engine) VariantConfig(experimentID, variantID string) (map[string]interface{}, bool) {
	exp, ok := e.catalog.Get(experimentID)
	if !ok {
		return nil, false
	}
	v, ok := exp.Variant(variantID)
	if !ok {
		return nil, false
	}
	return v.Config, true
}

func (e *Engine) eligible(exp *experiment.Experiment, subjectID string, reqCtx Context) bool {
	ta := exp.TargetAudience
	if ta == nil {
		return true
	}
	// Membership filters only apply when the context supplies a value.
	if len(ta.UserTypes) > 0 && reqCtx.UserType != "" && !containsString(ta.UserTypes, reqCtx.UserType) {
		metrics.AssignmentMisses.WithLabelValues(metrics.ReasonIneligible).Inc()
		return false
	}
	if len(ta.Locations) > 0 && reqCtx.Location != "" && !containsString(ta.Locations, reqCtx.Location) {
		metrics.AssignmentMisses.WithLabelValues(metrics.ReasonIneligible).Inc()
		return false
	}
	if !ta.RuleEligible(reqCtx.UserType, reqCtx.Location, subjectID, reqCtx.Attributes) {
		metrics.AssignmentMisses.WithLabelValues(metrics.ReasonIneligible).Inc()
		return false
	}
	if ta.Percentage < 100 {
		key := reqCtx.RolloutKey
		if key == "" {
			key = subjectID
		}
		if e.bucket(exp.ID+"-"+key) >= ta.Percentage {
			metrics.AssignmentMisses.WithLabelValues(metrics.ReasonRollout).Inc()
			return false
		}
	}
	return true
}

// selectVariant walks variants in order accumulating allocations; the first
// variant whose cumulative sum exceeds the bucket wins. When allocations sum
// below 100 the gap goes to the last variant, so selection never fails on a
// misconfigured split (at the cost of over-weighting that variant).
func (e *Engine) selectVariant(exp *experiment.Experiment, subjectID string) string {
	bucket := e.bucket(exp.ID + "-" + subjectID)
	cumulative := 0
	for i := range exp.Variants {
		cumulative += exp.Variants[i].Allocation
		if bucket < cumulative {
			return exp.Variants[i].ID
		}
	}
	return exp.Variants[len(exp.Variants)-1].ID
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
