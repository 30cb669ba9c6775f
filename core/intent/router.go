package intent

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultSingleAgentThreshold = 0.75
	defaultCrossAgentThreshold  = 0.65
	defaultCacheSize            = 512
)

// RouterConfig configures the routing cascade.
type RouterConfig struct {
	SingleAgentThreshold float64
	CrossAgentThreshold  float64
	CacheSize            int
}

// Router runs the stage cascade and produces a Decision for each
// message. Decisions for identical queries in identical context are
// served from an LRU cache.
type Router struct {
	mu     sync.RWMutex
	stages []Stage

	singleAgentThreshold float64
	crossAgentThreshold  float64

	cache  *lru.Cache[string, Decision]
	logger *slog.Logger
}

// NewRouter creates a Router with the given stages.
func NewRouter(config RouterConfig, logger *slog.Logger, stages ...Stage) (*Router, error) {
	if config.SingleAgentThreshold <= 0 {
		config.SingleAgentThreshold = defaultSingleAgentThreshold
	}
	if config.CrossAgentThreshold <= 0 {
		config.CrossAgentThreshold = defaultCrossAgentThreshold
	}
	if config.CacheSize <= 0 {
		config.CacheSize = defaultCacheSize
	}

	cache, err := lru.New[string, Decision](config.CacheSize)
	if err != nil {
		return nil, err
	}

	r := &Router{
		singleAgentThreshold: config.SingleAgentThreshold,
		crossAgentThreshold:  config.CrossAgentThreshold,
		cache:                cache,
		logger:               logger,
	}
	for _, s := range stages {
		r.AddStage(s)
	}
	return r, nil
}

// AddStage inserts a stage, keeping the cascade in priority order.
func (r *Router) AddStage(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
	sort.Slice(r.stages, func(i, j int) bool {
		return r.stages[i].Priority() < r.stages[j].Priority()
	})
}

// Route classifies the message. It never fails a turn: unroutable
// input yields the read-only support agent.
func (r *Router) Route(ctx context.Context, q Query) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(q)
	if cached, ok := r.cache.Get(key); ok {
		d := cached
		d.Method = d.Method + "+cached"
		return &d, nil
	}

	r.mu.RLock()
	stages := make([]Stage, len(r.stages))
	copy(stages, r.stages)
	r.mu.RUnlock()

	accumulated := NewStageResult()
	var lastMethod string

	for _, stage := range stages {
		result, err := stage.Classify(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Stage failures skip the stage, not the route.
			r.logger.Warn("routing stage failed", "stage", stage.Name(), "error", err)
			continue
		}

		accumulated.Merge(result)
		lastMethod = result.Method

		if r.shouldTerminate(accumulated) || !result.ShouldContinue {
			break
		}
	}

	decision := r.decide(accumulated, lastMethod)
	if decision.Method != "default" {
		r.cache.Add(key, *decision)
	}
	return decision, nil
}

func (r *Router) shouldTerminate(result *StageResult) bool {
	if result.AgentCount() != 1 {
		return false
	}
	_, maxConf := result.HighestConfidence()
	return maxConf >= r.singleAgentThreshold
}

// decide converts accumulated scores into a Decision. Agents scoring
// at or above the cross threshold are candidates; zero candidates
// defaults to support, one runs alone, several hand off to the planner.
func (r *Router) decide(result *StageResult, method string) *Decision {
	_, topConf := result.HighestConfidence()

	if result.IsEmpty() || topConf < r.crossAgentThreshold {
		return &Decision{
			Agents:     []Agent{AgentSupport},
			Strategy:   StrategySingle,
			Confidence: topConf,
			Method:     "default",
		}
	}

	candidates := make([]Agent, 0, result.AgentCount())
	for _, a := range result.Agents {
		if result.Confidences[a] >= r.crossAgentThreshold {
			candidates = append(candidates, a)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := result.Confidences[candidates[i]], result.Confidences[candidates[j]]
		if ci != cj {
			return ci > cj
		}
		return candidates[i] < candidates[j]
	})

	if len(candidates) == 1 {
		strategy := StrategySingle
		if candidates[0] == AgentPlanner {
			strategy = StrategyPlan
		}
		return &Decision{
			Agents:     candidates,
			Strategy:   strategy,
			Confidence: topConf,
			Method:     method,
		}
	}

	// Multiple domains: the planner decomposes the request, with the
	// candidates as its step hints.
	return &Decision{
		Agents:     candidates,
		Strategy:   StrategyPlan,
		Confidence: topConf,
		Method:     method,
	}
}

func cacheKey(q Query) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(q.Message)))
	b.WriteByte('|')
	b.WriteString(string(q.PriorAgent))
	b.WriteByte('|')
	b.WriteString(q.Route)
	b.WriteByte('|')
	b.WriteString(q.UIContext.SelectedSection)
	b.WriteByte('|')
	b.WriteString(q.UIContext.SelectedProjectID)
	return b.String()
}

// PurgeCache drops all cached decisions (after keyword reconfiguration).
func (r *Router) PurgeCache() {
	r.cache.Purge()
}
