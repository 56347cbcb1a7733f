package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/standardbeagle/testimpact/internal/types"
)

func TestTestNameOfSplitsOnDoubleColon(t *testing.T) {
	assert.Equal(t, "TestFoo", testNameOf(types.TestId("pkg/path::TestFoo")))
}

func TestTestNameOfFallsBackToWholeID(t *testing.T) {
	assert.Equal(t, "TestFoo", testNameOf(types.TestId("TestFoo")))
}

func TestJSONPayloadWrapsOutput(t *testing.T) {
	payload, err := jsonPayload("PASS\n")
	assert.NoError(t, err)
	assert.JSONEq(t, `{"output":"PASS\n"}`, string(payload))
}
