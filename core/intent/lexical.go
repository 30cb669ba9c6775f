package intent

import (
	"context"
	"regexp"
	"strings"
	"sync"
)

const (
	lexicalPriority    = 10
	lexicalMethodName  = "lexical"
	highConfidenceExit = 0.85
	maxSignalsPerAgent = 5

	keywordBase    = 0.6
	navigationBase = 0.7
	keywordClimb   = 0.15
	confidenceCap  = 0.95
)

// navigationVerbs are the phrases that express wanting to go somewhere.
// A navigator hit that includes one starts above a bare domain noun, so
// "take me to my projects" is a navigation request rather than a tie
// between the navigator and the noun's domain.
var navigationVerbs = []string{"go to", "take me", "navigate", "show me", "where is"}

// DefaultKeywords maps each agent to the vocabulary that signals its
// domain. The lists are deliberately short; anything subtler falls
// through to the later stages.
func DefaultKeywords() map[Agent][]string {
	return map[Agent][]string{
		AgentSupport: {
			"help", "how do i", "question", "broken", "bug", "error",
			"issue", "problem", "not working", "support", "ticket", "docs",
		},
		AgentProfile: {
			"profile", "bio", "headline", "display name", "email",
			"skills", "about me", "avatar", "links", "account",
		},
		AgentProjects: {
			"project", "projects", "portfolio", "case study", "showcase",
			"archive", "publish", "unpublish", "tags", "visibility",
		},
		AgentNavigator: {
			"go to", "open", "take me", "navigate", "show me", "where is",
			"settings page", "dashboard", "editor",
		},
		AgentPlanner: {
			"and then", "after that", "set up everything", "walk me through",
			"step by step", "first", "finally",
		},
	}
}

// LexicalStage scores agents by whole-word keyword matches.
type LexicalStage struct {
	mu       sync.RWMutex
	keywords map[Agent][]string
	patterns map[Agent][]*regexp.Regexp
	verbs    []*regexp.Regexp
}

// NewLexicalStage compiles the keyword table into match patterns.
func NewLexicalStage(keywords map[Agent][]string) *LexicalStage {
	if keywords == nil {
		keywords = DefaultKeywords()
	}
	s := &LexicalStage{
		keywords: keywords,
		patterns: make(map[Agent][]*regexp.Regexp),
		verbs:    compileKeywordPatterns(navigationVerbs),
	}
	s.compilePatterns()
	return s
}

func (s *LexicalStage) compilePatterns() {
	for agent, kws := range s.keywords {
		s.patterns[agent] = compileKeywordPatterns(kws)
	}
}

func compileKeywordPatterns(keywords []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		escaped := regexp.QuoteMeta(strings.ToLower(kw))
		re, err := regexp.Compile(`(?i)\b` + escaped + `\b`)
		if err == nil {
			patterns = append(patterns, re)
		}
	}
	return patterns
}

func (s *LexicalStage) Classify(ctx context.Context, q Query) (*StageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := NewStageResult()
	result.SetMethod(lexicalMethodName)

	if q.Message == "" {
		return result, nil
	}

	message := strings.ToLower(q.Message)
	s.mu.RLock()
	defer s.mu.RUnlock()

	for agent, patterns := range s.patterns {
		matches := countMatches(message, patterns)
		if matches == 0 {
			continue
		}
		base := keywordBase
		if agent == AgentNavigator && countMatches(message, s.verbs) > 0 {
			base = navigationBase
		}
		result.AddAgent(agent,
			keywordConfidence(base, matches),
			s.matchedKeywords(agent, matches),
		)
	}

	if s.shouldTerminate(result) {
		result.MarkComplete()
	}

	return result, nil
}

func countMatches(message string, patterns []*regexp.Regexp) int {
	count := 0
	for _, p := range patterns {
		if p.MatchString(message) {
			count++
		}
	}
	return count
}

// keywordConfidence starts at the agent's base for a single match and
// climbs with each additional matched keyword. One noun alone stays
// below the single-agent threshold so a later stage can confirm or
// override.
func keywordConfidence(base float64, matches int) float64 {
	if matches == 0 {
		return 0
	}
	score := base + float64(matches-1)*keywordClimb
	if score > confidenceCap {
		return confidenceCap
	}
	return score
}

func (s *LexicalStage) matchedKeywords(agent Agent, matches int) []string {
	kws := s.keywords[agent]
	limit := matches
	if limit > maxSignalsPerAgent {
		limit = maxSignalsPerAgent
	}
	if limit > len(kws) {
		limit = len(kws)
	}
	return kws[:limit]
}

func (s *LexicalStage) shouldTerminate(result *StageResult) bool {
	if result.AgentCount() != 1 {
		return false
	}
	_, maxConf := result.HighestConfidence()
	return maxConf >= highConfidenceExit
}

func (s *LexicalStage) Name() string {
	return lexicalMethodName
}

func (s *LexicalStage) Priority() int {
	return lexicalPriority
}

// UpdateKeywords replaces the keyword table, recompiling patterns.
func (s *LexicalStage) UpdateKeywords(keywords map[Agent][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = keywords
	s.patterns = make(map[Agent][]*regexp.Regexp)
	s.compilePatterns()
}
