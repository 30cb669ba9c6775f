package intent

import (
	"context"

	"github.com/folioforge/concierge/core/chat"
)

// Query carries the message plus the session signals stages may use.
type Query struct {
	Message    string
	PriorAgent Agent
	Route      string
	UIContext  chat.UIContext
}

// Stage is one step of the routing cascade. Stages run in Priority
// order; a stage error skips the stage rather than failing the route.
type Stage interface {
	Classify(ctx context.Context, q Query) (*StageResult, error)
	Name() string
	Priority() int
}

// StageResult accumulates per-agent confidence across stages.
type StageResult struct {
	Agents         []Agent            `json:"agents"`
	Confidences    map[Agent]float64  `json:"confidences"`
	Signals        map[Agent][]string `json:"signals"`
	ShouldContinue bool               `json:"should_continue"`
	Method         string             `json:"method"`

	// Additive marks a bias stage: on merge its confidences add to the
	// accumulated scores instead of replacing them when higher.
	Additive bool `json:"additive,omitempty"`
}

// NewStageResult returns an empty result that allows the cascade to
// continue.
func NewStageResult() *StageResult {
	return &StageResult{
		Agents:         make([]Agent, 0),
		Confidences:    make(map[Agent]float64),
		Signals:        make(map[Agent][]string),
		ShouldContinue: true,
	}
}

// AddAgent records an agent with its confidence and matched signals.
func (r *StageResult) AddAgent(a Agent, confidence float64, signals []string) {
	if !r.hasAgent(a) {
		r.Agents = append(r.Agents, a)
	}
	r.Confidences[a] = confidence
	if signals != nil {
		r.Signals[a] = append(r.Signals[a], signals...)
	}
}

func (r *StageResult) hasAgent(a Agent) bool {
	for _, existing := range r.Agents {
		if existing == a {
			return true
		}
	}
	return false
}

// HighestConfidence returns the best-scoring agent.
func (r *StageResult) HighestConfidence() (Agent, float64) {
	var maxAgent Agent
	var maxConf float64

	for a, conf := range r.Confidences {
		if conf > maxConf {
			maxAgent = a
			maxConf = conf
		}
	}
	return maxAgent, maxConf
}

// SetMethod records which stage produced this result.
func (r *StageResult) SetMethod(method string) {
	r.Method = method
}

// MarkComplete stops the cascade after this stage.
func (r *StageResult) MarkComplete() {
	r.ShouldContinue = false
}

// IsEmpty reports whether no agent scored at all.
func (r *StageResult) IsEmpty() bool {
	return len(r.Agents) == 0
}

// AgentCount returns the number of scored agents.
func (r *StageResult) AgentCount() int {
	return len(r.Agents)
}

// Merge folds another stage's scores into this result. Normal stages
// keep the higher confidence per agent; additive stages stack their
// boost on top, capped at 1.0.
func (r *StageResult) Merge(other *StageResult) {
	if other == nil {
		return
	}
	for _, a := range other.Agents {
		if !r.hasAgent(a) {
			r.Agents = append(r.Agents, a)
		}
		if other.Additive {
			sum := r.Confidences[a] + other.Confidences[a]
			if sum > 1.0 {
				sum = 1.0
			}
			r.Confidences[a] = sum
		} else if other.Confidences[a] > r.Confidences[a] {
			r.Confidences[a] = other.Confidences[a]
		}
		r.Signals[a] = append(r.Signals[a], other.Signals[a]...)
	}
}
