package service

import (
	"regexp"

	"github.com/xxxsen/ragsearch/internal/model"
)

type Intent string

const (
	IntentExact      Intent = "exact"
	IntentTechnical  Intent = "technical"
	IntentConceptual Intent = "conceptual"
	IntentBalanced   Intent = "balanced"
)

// focusedTextWeight is used when the query needs literal matches.
const focusedTextWeight = 0.5

// Classification is the routing decision for a query. A hybrid decision
// with a nil TextWeight uses the caller's resolved default weight.
type Classification struct {
	Intent     Intent
	Strategy   model.SearchStrategy
	TextWeight *float64
	Reason     string
}

type QueryClassifier interface {
	Classify(query string) Classification
}

type keywordClassifier struct{}

// NewKeywordClassifier routes queries by cue words and identifier shapes.
// Exact phrasing wins over technical terms, which win over conceptual cues.
func NewKeywordClassifier() QueryClassifier {
	return keywordClassifier{}
}

var (
	quotedRe = regexp.MustCompile(`"[^"]+"|(?:^|\s)'[^']+'`)
	exactRe  = regexp.MustCompile(`(?i)\b(?:exact|exactly|verbatim|quotes?|quoted|literal|literally|word[- ]for[- ]word)\b`)

	technicalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b[A-Z][A-Z0-9]*_[A-Z0-9_]+\b`),
		regexp.MustCompile(`\b[a-z][a-z0-9]*_[a-z0-9_]+\b`),
		regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]+`),
		regexp.MustCompile(`\(\)|\{\}|::|->|=>`),
		regexp.MustCompile(`\b(?:def|func|fn|import)\s+[A-Za-z_]`),
		regexp.MustCompile(`(?i)\b(?:functions?|methods?|apis?|errors?|exceptions?|syntax|config|configuration|parameters?|endpoints?|traceback|stacktrace|variables?|compiler?|regex|sql|json|yaml|http|cli)\b`),
	}

	conceptualRe = regexp.MustCompile(`(?i)\b(?:what (?:is|are)|concepts?|ideas?|meaning|similar|about|explain|understand(?:ing)?|why|how (?:does|do)|overview|theory|principles?)\b`)
)

func (keywordClassifier) Classify(query string) Classification {
	weight := focusedTextWeight
	switch {
	case quotedRe.MatchString(query) || exactRe.MatchString(query):
		return Classification{
			Intent:     IntentExact,
			Strategy:   model.StrategyHybrid,
			TextWeight: &weight,
			Reason:     "Query asks for exact text, using hybrid search with a higher keyword weight",
		}
	case matchAny(technicalPatterns, query):
		return Classification{
			Intent:     IntentTechnical,
			Strategy:   model.StrategyHybrid,
			TextWeight: &weight,
			Reason:     "Query contains technical terms or identifiers, using hybrid search to match them literally",
		}
	case conceptualRe.MatchString(query):
		return Classification{
			Intent:   IntentConceptual,
			Strategy: model.StrategySemantic,
			Reason:   "Query is conceptual, using semantic search for meaning",
		}
	default:
		return Classification{
			Intent:   IntentBalanced,
			Strategy: model.StrategyHybrid,
			Reason:   "No strong signal, using hybrid search for balanced results",
		}
	}
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
