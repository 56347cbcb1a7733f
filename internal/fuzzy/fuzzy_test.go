package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/standardbeagle/testimpact/internal/types"
)

func TestSuggestRanksClosestFirst(t *testing.T) {
	candidates := []types.TestId{
		"pkg/a_test.go::TestFoo",
		"pkg/a_test.go::TestFooBar",
		"pkg/b_test.go::TestUnrelated",
	}
	got := Suggest("TestFoo", candidates, 0.5, 2)
	assert.Len(t, got, 2)
	assert.Equal(t, types.TestId("pkg/a_test.go::TestFoo"), got[0])
}

func TestSuggestDropsBelowThreshold(t *testing.T) {
	candidates := []types.TestId{"completely_different"}
	got := Suggest("TestFoo", candidates, 0.99, 5)
	assert.Empty(t, got)
}
