package engine

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatches(t *testing.T) {
	t.Run("five items in batches of two", func(t *testing.T) {
		batches, err := Batches([]string{"A", "B", "C", "D", "E"}, 2)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"A", "B"}, {"C", "D"}, {"E"}}, batches)
	})

	t.Run("empty input has no batches", func(t *testing.T) {
		batches, err := Batches([]string{}, 50)
		require.NoError(t, err)
		assert.Empty(t, batches)
	})

	t.Run("non positive size is rejected", func(t *testing.T) {
		_, err := Batches([]string{"A"}, 0)
		require.Error(t, err)
		assert.ErrorContains(t, err, "batch size must be positive")

		_, err = Batches([]string{"A"}, -3)
		require.Error(t, err)
	})
}

func TestBatches_CoverInputExactlyOnce(t *testing.T) {
	for n := 0; n <= 23; n++ {
		for size := 1; size <= 7; size++ {
			t.Run(fmt.Sprintf("n=%d/size=%d", n, size), func(t *testing.T) {
				items := make([]int, n)
				for i := range items {
					items[i] = i
				}

				batches, err := Batches(items, size)
				require.NoError(t, err)
				assert.Len(t, batches, (n+size-1)/size)

				var flat []int
				for _, b := range batches {
					assert.NotEmpty(t, b)
					assert.LessOrEqual(t, len(b), size)
					flat = append(flat, b...)
				}
				if n == 0 {
					assert.Empty(t, flat)
					return
				}
				assert.Equal(t, items, flat)
			})
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateListing, true},
		{StateListing, StateBatching, true},
		{StateListing, StateAborted, true},
		{StateListing, StateFinalizing, true},
		{StateBatching, StateBatching, true},
		{StateBatching, StateFinalizing, true},
		{StateBatching, StateAborted, true},
		{StateFinalizing, StateDone, true},
		{StateFinalizing, StateAborted, true},
		{StateIdle, StateBatching, false},
		{StateListing, StateDone, false},
		{StateDone, StateListing, false},
		{StateAborted, StateFinalizing, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateBatching.Terminal())
}

func TestState_TextRoundTrip(t *testing.T) {
	for state := StateIdle; state <= StateAborted; state++ {
		t.Run(state.String(), func(t *testing.T) {
			data, err := json.Marshal(Result{State: state})
			require.NoError(t, err)
			assert.Contains(t, string(data), fmt.Sprintf(`"state":%q`, state.String()))

			var got Result
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, state, got.State)
		})
	}

	var s State
	assert.ErrorContains(t, s.UnmarshalText([]byte("Paused")), `unknown pipeline state "Paused"`)
	assert.ErrorContains(t, s.UnmarshalText([]byte("State(9)")), "unknown pipeline state")
}
