package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaccardSimilarityIdenticalSets(t *testing.T) {
	a := map[string]string{"geo.country": "US", "time.hour": "1"}
	b := map[string]string{"geo.country": "US", "time.hour": "1"}
	assert.Equal(t, 1.0, jaccardSimilarity(a, b))
}

func TestJaccardSimilarityDisjointSets(t *testing.T) {
	a := map[string]string{"geo.country": "US"}
	b := map[string]string{"geo.country": "DE"}
	assert.Equal(t, 0.0, jaccardSimilarity(a, b))
}

func TestJaccardSimilarityPartialOverlap(t *testing.T) {
	a := map[string]string{"geo.country": "US", "time.hour": "1"}
	b := map[string]string{"geo.country": "US", "time.hour": "2"}
	// intersection = {geo.country=US} (1), union = 3 distinct members
	assert.InDelta(t, 1.0/3.0, jaccardSimilarity(a, b), 0.0001)
}

func TestJaccardSimilarityBothEmpty(t *testing.T) {
	assert.Equal(t, 1.0, jaccardSimilarity(nil, nil))
}

func TestPrivacyRiskBudgetRemaining(t *testing.T) {
	b := PrivacyRiskBudget{Allocated: 10, Consumed: 4}
	assert.Equal(t, 6.0, b.Remaining())
}

func TestTransformCostKnownAndUnknown(t *testing.T) {
	assert.Equal(t, 0.5, TransformCost("AGGREGATE"))
	assert.Equal(t, 1.0, TransformCost("SOMETHING_NEW"))
}
