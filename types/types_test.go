package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityOrdering(t *testing.T) {
	assert.Less(t, PriorityLow, PriorityNormal)
	assert.Less(t, PriorityNormal, PriorityHigh)
	assert.Less(t, PriorityHigh, PriorityCritical)
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"low", PriorityLow, false},
		{"NORMAL", PriorityNormal, false},
		{" high ", PriorityHigh, false},
		{"critical", PriorityCritical, false},
		{"", PriorityNormal, false},
		{"urgent", PriorityNormal, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriorityValid(t *testing.T) {
	for _, p := range Priorities {
		assert.True(t, p.Valid(), p.String())
	}
	assert.False(t, Priority(-1).Valid())
	assert.False(t, Priority(4).Valid())
	assert.Equal(t, "priority(9)", Priority(9).String())
}

func TestUpdateRequestJSONPriority(t *testing.T) {
	var req UpdateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"key":"workouts*","priority":"high","force":true}`), &req))

	assert.Equal(t, "workouts*", req.Key)
	assert.Equal(t, PriorityHigh, req.Priority)
	assert.True(t, req.Force)
	assert.True(t, req.Wildcard())

	err := json.Unmarshal([]byte(`{"key":"a","priority":"bogus"}`), &req)
	assert.Error(t, err)
}

func TestSplitWildcard(t *testing.T) {
	prefix, ok := SplitWildcard("workouts*")
	assert.True(t, ok)
	assert.Equal(t, "workouts", prefix)

	prefix, ok = SplitWildcard("workouts_list")
	assert.False(t, ok)
	assert.Equal(t, "workouts_list", prefix)

	prefix, ok = SplitWildcard("*")
	assert.True(t, ok)
	assert.Equal(t, "", prefix)
}

func TestRefetchModeString(t *testing.T) {
	assert.Equal(t, "none", RefetchNone.String())
	assert.Equal(t, "active", RefetchActive.String())
}
