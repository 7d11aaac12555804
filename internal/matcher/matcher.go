// Package matcher assigns an observed video resource to a learning-plan
// chapter. Matching is tiered: an explicit pending assignment wins
// unconditionally, then a scored keyword/semantic match over the known
// plans, then a structured no-match reason. Each call is stateless; plans
// come from the remote listing with the local cache as offline fallback.
package matcher

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/focusd/internal/remote"
	"github.com/kalambet/focusd/internal/store"
)

const (
	semanticThreshold = 0.62
	keywordThreshold  = 0.34
	remoteTimeout     = 10 * time.Second
)

// PendingSource answers whether the user explicitly queued this video for a
// chapter.
type PendingSource interface {
	PendingAssignment(ctx context.Context, resourceKey string) (*remote.PendingAssignment, error)
}

// PlanSource lists plans from the service.
type PlanSource interface {
	ListPlans(ctx context.Context) ([]store.Plan, error)
}

// PlanCache is the local plan store used for offline matching.
type PlanCache interface {
	SavePlan(p store.Plan) error
	ListPlans() ([]store.Plan, error)
}

// Upgrader propagates a successful match into the classification cache. The
// wiring composes blocklist removal onto this so an upgraded resource is
// unblocked in the same step.
type Upgrader interface {
	UpgradeToProductive(resourceKey string) error
}

// Reporter tells the service about match outcomes: scored matches are
// reported, and an accepted pending assignment binds the video to its
// designated chapter.
type Reporter interface {
	ReportMatch(ctx context.Context, m remote.MatchReport) error
	SetVideoForChapter(ctx context.Context, planID string, chapterIndex int, resourceKey string) error
}

// Matcher runs the tiered assignment.
type Matcher struct {
	pending  PendingSource
	plans    PlanSource
	cache    PlanCache
	upgrader Upgrader
	reporter Reporter
	logger   *slog.Logger
}

// New creates a Matcher. pending, plans, and reporter may be nil when the
// agent runs fully offline; the matcher then works from the cache alone.
func New(pending PendingSource, plans PlanSource, cache PlanCache, upgrader Upgrader, reporter Reporter) *Matcher {
	return &Matcher{
		pending:  pending,
		plans:    plans,
		cache:    cache,
		upgrader: upgrader,
		reporter: reporter,
		logger:   slog.Default(),
	}
}

// Match runs the tiers for one video and returns a Match or a Reason. A
// successful match upgrades the resource's cached classification before
// returning.
func (m *Matcher) Match(ctx context.Context, video Video) (Result, error) {
	pending, plans, remoteFailed := m.gather(ctx, video.ResourceKey)

	// Tier 1: an explicit assignment wins over any score.
	if pending != nil {
		matchType := MatchPending
		if pending.Completed {
			matchType = MatchPendingRewatch
		}
		match := &Match{
			PlanID:       pending.PlanID,
			ChapterIndex: pending.ChapterIndex,
			ChapterTitle: pending.ChapterTitle,
			MatchType:    matchType,
			Confidence:   1,
		}
		m.accept(ctx, video, match)
		return Result{Match: match}, nil
	}

	if len(plans) == 0 {
		if remoteFailed {
			return Result{Reason: ReasonNetworkError}, nil
		}
		return Result{Reason: ReasonNoPlans}, nil
	}

	// Tier 2: highest-scoring chapter across all plans.
	if match := m.bestScored(video, plans); match != nil {
		m.accept(ctx, video, match)
		return Result{Match: match}, nil
	}

	// Tier 3: nothing cleared its threshold.
	return Result{Reason: ReasonBelowThreshold}, nil
}

// gather fetches the pending assignment and the plan listings concurrently,
// refreshing the cache on success and falling back to it on failure.
func (m *Matcher) gather(ctx context.Context, resourceKey string) (*remote.PendingAssignment, []store.Plan, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	var (
		pending     *remote.PendingAssignment
		remotePlans []store.Plan
	)
	g, gctx := errgroup.WithContext(fetchCtx)
	if m.pending != nil {
		g.Go(func() error {
			var err error
			pending, err = m.pending.PendingAssignment(gctx, resourceKey)
			return err
		})
	}
	if m.plans != nil {
		g.Go(func() error {
			var err error
			remotePlans, err = m.plans.ListPlans(gctx)
			return err
		})
	}

	remoteFailed := false
	if err := g.Wait(); err != nil {
		m.logger.Debug("remote fetch failed, using cached plans", "error", err)
		remoteFailed = true
	}

	if !remoteFailed && m.plans != nil {
		for _, p := range remotePlans {
			if err := m.cache.SavePlan(p); err != nil {
				m.logger.Warn("caching plan failed", "plan", p.ID, "error", err)
			}
		}
		return pending, remotePlans, false
	}

	cached, err := m.cache.ListPlans()
	if err != nil {
		m.logger.Warn("reading plan cache failed", "error", err)
		return pending, nil, remoteFailed
	}
	return pending, cached, remoteFailed
}

// scored is one candidate chapter with its score and tie-break context.
type scored struct {
	match     Match
	score     float64
	completed bool
	relevant  bool
}

// bestScored scores every chapter and returns the winner, or nil when
// nothing clears its threshold. Ties prefer incomplete chapters, then
// chapters from topically-relevant plans. A completed winner is a rewatch.
func (m *Matcher) bestScored(video Video, plans []store.Plan) *Match {
	text := video.Title + " " + video.Channel + " " + video.Description

	var best *scored
	for _, plan := range plans {
		for _, ch := range plan.Chapters {
			var score float64
			matchType := MatchKeyword
			if len(video.Embedding) > 0 && len(ch.Embedding) > 0 {
				score = cosine(video.Embedding, ch.Embedding)
				matchType = MatchSemantic
				if score < semanticThreshold {
					continue
				}
			} else {
				score = keywordScore(text, ch.Keywords)
				if score < keywordThreshold {
					continue
				}
			}

			cand := scored{
				match: Match{
					PlanID:       plan.ID,
					ChapterIndex: ch.Index,
					ChapterTitle: ch.Title,
					MatchType:    matchType,
					Confidence:   score,
				},
				score:     score,
				completed: ch.Completed,
				relevant:  plan.Relevant,
			}
			if best == nil || cand.beats(*best) {
				c := cand
				best = &c
			}
		}
	}
	if best == nil {
		return nil
	}
	if best.completed {
		best.match.MatchType = MatchRewatch
	}
	return &best.match
}

func (c scored) beats(other scored) bool {
	if c.score != other.score {
		return c.score > other.score
	}
	if c.completed != other.completed {
		return !c.completed
	}
	if c.relevant != other.relevant {
		return c.relevant
	}
	return false
}

// accept propagates a match: the classification upgrade is local and must
// happen; the report to the service is best effort.
func (m *Matcher) accept(ctx context.Context, video Video, match *Match) {
	if m.upgrader != nil {
		if err := m.upgrader.UpgradeToProductive(video.ResourceKey); err != nil {
			m.logger.Warn("classification upgrade failed", "resource", video.ResourceKey, "error", err)
		}
	}
	if m.reporter == nil {
		return
	}
	reportCtx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	switch match.MatchType {
	case MatchPending, MatchPendingRewatch:
		// The service queued this assignment; acceptance binds the video to
		// the designated chapter.
		if err := m.reporter.SetVideoForChapter(reportCtx, match.PlanID, match.ChapterIndex, video.ResourceKey); err != nil {
			m.logger.Debug("chapter video binding failed", "resource", video.ResourceKey, "error", err)
		}
	default:
		if err := m.reporter.ReportMatch(reportCtx, remote.MatchReport{
			ResourceKey:  video.ResourceKey,
			PlanID:       match.PlanID,
			ChapterIndex: match.ChapterIndex,
			MatchType:    match.MatchType,
			Confidence:   match.Confidence,
		}); err != nil {
			m.logger.Debug("match report failed", "resource", video.ResourceKey, "error", err)
		}
	}
}
