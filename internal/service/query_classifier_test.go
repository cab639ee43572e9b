package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragsearch/internal/model"
)

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		query    string
		intent   Intent
		strategy model.SearchStrategy
		weight   *float64
	}{
		{query: `Find exact quote "deep learning"`, intent: IntentExact, strategy: model.StrategyHybrid, weight: ptr(0.5)},
		{query: "What is the concept of neural networks?", intent: IntentConceptual, strategy: model.StrategySemantic},
		{query: `find "connection reset by peer" in the logs`, intent: IntentExact, strategy: model.StrategyHybrid, weight: ptr(0.5)},
		{query: "the exact wording of the license", intent: IntentExact, strategy: model.StrategyHybrid, weight: ptr(0.5)},
		{query: "how to set MAX_RETRIES", intent: IntentTechnical, strategy: model.StrategyHybrid, weight: ptr(0.5)},
		{query: "explain what embedding.NewGenerator returns", intent: IntentTechnical, strategy: model.StrategyHybrid, weight: ptr(0.5)},
		{query: "api error when uploading", intent: IntentTechnical, strategy: model.StrategyHybrid, weight: ptr(0.5)},
		{query: "what is retrieval augmented generation", intent: IntentConceptual, strategy: model.StrategySemantic},
		{query: "why do teams adopt vector stores", intent: IntentConceptual, strategy: model.StrategySemantic},
		{query: "postgres indexing tips", intent: IntentBalanced, strategy: model.StrategyHybrid},
	}
	c := NewKeywordClassifier()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := c.Classify(tt.query)
			require.Equal(t, tt.intent, got.Intent)
			require.Equal(t, tt.strategy, got.Strategy)
			require.Equal(t, tt.weight, got.TextWeight)
			require.Contains(t, got.Reason, string(tt.intent))
		})
	}
}

func ptr(v float64) *float64 {
	return &v
}
