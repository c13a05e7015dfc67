package fuse

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalTriggerTripOnce(t *testing.T) {
	trig := NewLocalTrigger()
	require.False(t, trig.IsTripped())
	require.True(t, trig.TryTrip())
	require.False(t, trig.TryTrip())
	require.True(t, trig.IsTripped())

	trig.Reset()
	require.False(t, trig.IsTripped())
	require.True(t, trig.TryTrip())
}

func TestClassify(t *testing.T) {
	require.Equal(t, outcomeSuccess, classify(200, nil))
	require.Equal(t, outcomeSuccess, classify(101, nil))
	require.Equal(t, outcomeClientError, classify(404, nil))
	require.Equal(t, outcomeClientError, classify(499, nil))
	require.Equal(t, outcomeRetryable, classify(500, nil))
	require.Equal(t, outcomeRetryable, classify(http.StatusFound, nil))
	require.Equal(t, outcomeRetryable, classify(0, errors.New("network error")))
}
