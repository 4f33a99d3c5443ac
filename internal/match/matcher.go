package match

import (
	"fmt"
	"sort"
	"time"

	"github.com/kartikbazzad/bunbase/searchcore/internal/attribute"
	"github.com/kartikbazzad/bunbase/searchcore/internal/grouping"
	"github.com/kartikbazzad/bunbase/searchcore/internal/metrics"
	"github.com/kartikbazzad/bunbase/searchcore/internal/query"
	"github.com/kartikbazzad/bunbase/searchcore/rules"
)

// SearchView is the read-side surface a Matcher evaluates against: resolved
// posting data for term leaves, per-document field values for ranking and
// sorting, and the committed lid limit bounding the candidate universe.
type SearchView interface {
	TermHits(field, term string) query.HitList
	DocFields(lid attribute.LID) map[string]any
	CommittedDocIdLimit() uint32
}

// Request is the behavior-level query request: a map-form query tree,
// a ranking profile name, paging, an optional sort spec, an optional
// grouping spec and an optional session id for continuation.
type Request struct {
	Query       map[string]any
	RankProfile string
	SortSpec    string
	Offset      int
	Hits        int
	Grouping    *grouping.Spec
	SessionID   string // continue a cached session instead of re-matching

	// MatchPhaseLimit caps the number of candidates entering ranking; 0
	// disables the limiter.
	MatchPhaseLimit int

	SoftTimeout time.Duration
	HardTimeout time.Duration
}

// Result is one query's merged outcome.
type Result struct {
	Hits      []Hit
	TotalHits int    // matches before paging and the match-phase limiter; a session continuation reports the number of hits cached in the session
	SessionID string // echo for follow-up requests
	Groups    []*grouping.Group
	Limited   bool // the match-phase limiter truncated the candidate set
}

// Config tunes a Matcher. Defaults follow DefaultConfig.
type Config struct {
	NumThreads     int
	ChunkSize      int
	SessionTTL     time.Duration
	DefaultProfile string
	SoftTimeout    time.Duration
	HardTimeout    time.Duration
}

// DefaultConfig returns the standard matcher tuning.
func DefaultConfig() Config {
	return Config{
		NumThreads:     4,
		ChunkSize:      256,
		SessionTTL:     time.Minute,
		DefaultProfile: "default",
		SoftTimeout:    500 * time.Millisecond,
		HardTimeout:    time.Second,
	}
}

// Matcher serves queries against one SearchView: per-query thread bundle,
// two-phase ranking via the profile registry, session caching and grouping.
type Matcher struct {
	view     SearchView
	profiles *rules.ProfileRegistry
	sessions *SessionCache
	cfg      Config
	metrics  *metrics.Registry
	nowFn    func() time.Time
}

// NewMatcher builds a matcher over view with the given profile registry.
func NewMatcher(view SearchView, profiles *rules.ProfileRegistry, cfg Config) *Matcher {
	if cfg.NumThreads < 1 {
		cfg.NumThreads = 1
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = 256
	}
	return &Matcher{
		view:     view,
		profiles: profiles,
		sessions: NewSessionCache(cfg.SessionTTL),
		cfg:      cfg,
		nowFn:    time.Now,
	}
}

// SetMetrics attaches the observable-counters registry. Nil is valid.
func (m *Matcher) SetMetrics(reg *metrics.Registry) { m.metrics = reg }

// Sessions exposes the session cache so the maintenance layer's
// SessionCachePruner can expire entries.
func (m *Matcher) Sessions() *SessionCache { return m.sessions }

// Search runs req to a merged, paged result. A request carrying a live
// session id is served from the cached hit set without re-matching.
func (m *Matcher) Search(req Request) (*Result, error) {
	now := m.nowFn()

	if req.SessionID != "" {
		if s, ok := m.sessions.Get(now, req.SessionID); ok {
			return &Result{
				Hits:      window(s.Hits, req.Offset, req.Hits),
				TotalHits: len(s.Hits),
				SessionID: s.ID,
			}, nil
		}
		// Expired session: fall through and re-match.
	}

	profileName := req.RankProfile
	if profileName == "" {
		profileName = m.cfg.DefaultProfile
	}
	profile, ok := m.profiles.Get(profileName)
	if !ok {
		return nil, fmt.Errorf("match: unknown rank profile %q", profileName)
	}

	candidates, err := m.matchCandidates(req)
	if err != nil {
		return nil, err
	}
	totalHits := len(candidates)

	limited := false
	if req.MatchPhaseLimit > 0 && len(candidates) > req.MatchPhaseLimit {
		candidates = m.limitMatchPhase(candidates, req.MatchPhaseLimit)
		limited = true
		if m.metrics != nil {
			m.metrics.MatchPhaseLimited.Inc()
		}
	}

	hits := m.rank(req, profile, candidates, now)

	if req.SortSpec != "" {
		keys, err := query.ParseSortSpec(req.SortSpec)
		if err != nil {
			return nil, fmt.Errorf("match: %w", err)
		}
		sort.SliceStable(hits, func(i, j int) bool {
			return query.CompareByKeys(m.view.DocFields(hits[i].LID), m.view.DocFields(hits[j].LID), keys) < 0
		})
	}

	res := &Result{
		Hits:      window(hits, req.Offset, req.Hits),
		TotalHits: totalHits,
		Limited:   limited,
	}

	if req.Grouping != nil {
		groups, err := m.group(req.Grouping, candidates)
		if err != nil {
			return nil, err
		}
		res.Groups = groups
	}

	res.SessionID = m.sessions.Put(now, hits)
	return res, nil
}

// Docsums returns the field values for lids, visited in ascending lid
// order. A live session id marks the request as a continuation; the
// extraction source is the same view either way.
func (m *Matcher) Docsums(sessionID string, lids []attribute.LID) []map[string]any {
	if sessionID != "" {
		// Touch the session so an active result set stays warm while the
		// client pages through summaries.
		m.sessions.Get(m.nowFn(), sessionID)
	}
	sorted := append([]attribute.LID(nil), lids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := make([]map[string]any, 0, len(sorted))
	for _, lid := range sorted {
		out = append(out, m.view.DocFields(lid))
	}
	return out
}

// matchCandidates parses and evaluates the boolean query tree over the
// committed lid universe.
func (m *Matcher) matchCandidates(req Request) ([]attribute.LID, error) {
	if len(req.Query) == 0 {
		return nil, fmt.Errorf("match: empty query")
	}
	parsed, err := query.ParseRequest(req.Query)
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	tree := query.Resolve(parsed, m.view.TermHits)

	limit := m.view.CommittedDocIdLimit()
	universe := make([]uint32, limit)
	for i := range universe {
		universe[i] = uint32(i)
	}
	docs := query.Evaluate(tree, universe)

	candidates := make([]attribute.LID, len(docs))
	for i, d := range docs {
		candidates[i] = attribute.LID(d)
	}
	return candidates, nil
}

// limitMatchPhase estimates the total match frequency across the thread
// bundle and truncates the candidate set to limit. Each thread counts its
// share of the candidate range and the estimate is reduced at an
// estimate_match_frequency rendezvous; the post-rendezvous
// swap-in of a capped iterator becomes a simple prefix truncation here,
// since candidates are already materialized.
func (m *Matcher) limitMatchPhase(candidates []attribute.LID, limit int) []attribute.LID {
	n := m.cfg.NumThreads
	comm := NewCommunicator(n)
	done := make(chan struct{}, n)

	per := (len(candidates) + n - 1) / n
	for t := 0; t < n; t++ {
		lo := t * per
		hi := lo + per
		if hi > len(candidates) {
			hi = len(candidates)
		}
		if lo > hi {
			lo = hi
		}
		share := hi - lo
		go func() {
			comm.Rendezvous(share, func(values []any) any {
				total := 0
				for _, v := range values {
					total += v.(int)
				}
				return total
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	return candidates[:limit]
}

// rank runs the two-phase match loop over candidates and returns every
// surviving hit ordered strongest first.
func (m *Matcher) rank(req Request, profile *rules.RankProfile, candidates []attribute.LID, now time.Time) []Hit {
	soft, hard := req.SoftTimeout, req.HardTimeout
	if soft == 0 {
		soft = m.cfg.SoftTimeout
	}
	if hard == 0 {
		hard = m.cfg.HardTimeout
	}
	doom := NewDoom(now, soft, hard)

	heapSize := req.Offset + req.Hits
	if heapSize <= 0 {
		heapSize = len(candidates)
	}

	scheduler := NewDocidRangeScheduler(attribute.LID(len(candidates)), attribute.LID(m.cfg.ChunkSize))
	threads := make([]*MatchThread, m.cfg.NumThreads)
	for i := range threads {
		threads[i] = NewMatchThread(i, candidates, scheduler, m.view.DocFields, profile, heapSize, doom)
	}

	merged := RunQueryWithMetrics(threads, heapSize, NewDualMergeDirector(0, 0), m.metrics)

	// Merge order is ascending by score; results read strongest first.
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	return merged
}

// group collects every candidate's field values into the grouping tree and
// runs the post-merge ordering/truncation pass.
func (m *Matcher) group(spec *grouping.Spec, candidates []attribute.LID) ([]*grouping.Group, error) {
	result := grouping.NewResult(spec)
	for _, lid := range candidates {
		if err := result.Collect(m.view.DocFields(lid), 0); err != nil {
			return nil, fmt.Errorf("match: grouping: %w", err)
		}
	}
	return result.PostMerge(), nil
}

func window(hits []Hit, offset, limit int) []Hit {
	if offset >= len(hits) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(hits) {
		end = len(hits)
	}
	return append([]Hit(nil), hits[offset:end]...)
}
