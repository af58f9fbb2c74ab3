package odx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowedKey(t *testing.T) {
	assert.True(t, IsAllowedKey("geo.country"))
	assert.True(t, IsAllowedKey("domain.health"))
	assert.True(t, IsAllowedKey("purpose"))
	assert.False(t, IsAllowedKey("user.email"))
}

func TestViolationsSortedAndPrefixed(t *testing.T) {
	criteria := map[string]string{
		"user.email": "x@y",
		"geo.country": "US",
		"zzz.custom": "1",
	}
	got := Violations(criteria)
	assert.Equal(t, []string{"NON_ODX_CRITERIA:user.email", "NON_ODX_CRITERIA:zzz.custom"}, got)
}

func TestQuasiIdentifierCount(t *testing.T) {
	scope := map[string]string{"birthdate": "x", "zipcode": "y", "gender": "z"}
	assert.Equal(t, 3, CountQuasiIdentifiers(scope))
}

func TestMinorsIndicatorDetection(t *testing.T) {
	assert.True(t, ContainsMinorsIndicator([]string{"survey for high school students"}))
	assert.True(t, ContainsMinorsIndicator(nil, map[string]string{"school_type": "elementary"}))
	assert.False(t, ContainsMinorsIndicator([]string{"general adult survey"}))
}
