package service

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/taskflow-hq/taskflow/internal/platform/logger"
)

// SuggestionSource says where a suggestion came from.
type SuggestionSource string

const (
	SuggestionHistory SuggestionSource = "history"
	SuggestionPopular SuggestionSource = "popular"
	SuggestionContext SuggestionSource = "context"
	SuggestionKeyword SuggestionSource = "keyword"
)

// Suggestion is a ranked search refinement.
type Suggestion struct {
	Text       string           `json:"text"`
	Source     SuggestionSource `json:"source"`
	Confidence float64          `json:"confidence"`
}

type cannedSuggestion struct {
	text       string
	confidence float64
}

// Static suggestions per search context. The empty context applies when
// none is given.
var contextSuggestions = map[string][]cannedSuggestion{
	"": {
		{"my tasks", 0.55},
		{"my projects", 0.5},
		{"overdue tasks", 0.45},
	},
	"tasks": {
		{"my tasks", 0.6},
		{"overdue tasks", 0.55},
		{"high priority tasks", 0.5},
		{"tasks due this week", 0.45},
	},
	"projects": {
		{"my projects", 0.6},
		{"active projects", 0.55},
		{"public projects", 0.45},
	},
	"users": {
		{"people in my team", 0.55},
		{"recently joined", 0.45},
	},
	"teams": {
		{"my teams", 0.6},
		{"public teams", 0.45},
	},
}

// Refinements triggered by a keyword anywhere in the term.
var keywordSuggestions = []struct {
	keyword     string
	suggestions []cannedSuggestion
}{
	{"overdue", []cannedSuggestion{{"overdue tasks assigned to me", 0.9}, {"overdue high priority tasks", 0.85}}},
	{"urgent", []cannedSuggestion{{"urgent tasks", 0.9}, {"high priority tasks", 0.8}}},
	{"due", []cannedSuggestion{{"tasks due today", 0.85}, {"tasks due this week", 0.8}}},
	{"priority", []cannedSuggestion{{"high priority tasks", 0.85}, {"low priority tasks", 0.6}}},
	{"done", []cannedSuggestion{{"completed tasks", 0.8}}},
	{"complete", []cannedSuggestion{{"completed tasks", 0.8}, {"incomplete tasks", 0.75}}},
}

const (
	historyConfidence      = 0.8
	historyConfidenceDecay = 0.02
	popularConfidenceBase  = 0.4
	popularConfidenceRange = 0.3
	suggestionSourceLimit  = 20
)

// SuggestionService blends the user's history, globally popular terms and
// canned refinements into one ranked list.
type SuggestionService struct {
	history *HistoryService
	logger  logger.Logger
}

func NewSuggestionService(history *HistoryService, logger logger.Logger) *SuggestionService {
	return &SuggestionService{
		history: history,
		logger:  logger,
	}
}

// GetSuggestions returns at most limit suggestions for term, highest
// confidence first. An unavailable history store only removes the
// history and popular sources.
func (s *SuggestionService) GetSuggestions(ctx context.Context, userID int64, term, searchContext string, limit int) []Suggestion {
	if limit <= 0 {
		limit = 10
	}
	term = strings.ToLower(normalizeTerm(term))
	best := make(map[string]Suggestion)
	add := func(text string, source SuggestionSource, confidence float64) {
		if text == "" || text == term {
			return
		}
		if cur, ok := best[text]; ok && cur.Confidence >= confidence {
			return
		}
		best[text] = Suggestion{Text: text, Source: source, Confidence: confidence}
	}

	if userID > 0 {
		recent, err := s.history.GetSearchHistory(ctx, userID, suggestionSourceLimit)
		if err != nil {
			s.logger.Warn("History unavailable for suggestions", "user_id", userID, "error", err)
		}
		for i, h := range recent {
			if term == "" || strings.HasPrefix(h, term) {
				add(h, SuggestionHistory, historyConfidence-float64(i)*historyConfidenceDecay)
			}
		}
	}

	popular, err := s.history.GetPopularSearchTerms(ctx, suggestionSourceLimit)
	if err != nil {
		s.logger.Warn("Popular terms unavailable for suggestions", "error", err)
	}
	if len(popular) > 0 {
		top := float64(popular[0].Count)
		for _, p := range popular {
			if term == "" || strings.Contains(p.Term, term) {
				add(p.Term, SuggestionPopular, popularConfidenceBase+popularConfidenceRange*float64(p.Count)/top)
			}
		}
	}

	for _, kw := range keywordSuggestions {
		if term != "" && strings.Contains(term, kw.keyword) {
			for _, c := range kw.suggestions {
				add(c.text, SuggestionKeyword, c.confidence)
			}
		}
	}

	canned, ok := contextSuggestions[strings.ToLower(strings.TrimSpace(searchContext))]
	if !ok {
		canned = contextSuggestions[""]
	}
	for _, c := range canned {
		if term == "" || strings.Contains(c.text, term) {
			add(c.text, SuggestionContext, c.confidence)
		}
	}

	out := make([]Suggestion, 0, len(best))
	for _, sg := range best {
		out = append(out, sg)
	}
	slices.SortFunc(out, func(a, b Suggestion) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return strings.Compare(a.Text, b.Text)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
