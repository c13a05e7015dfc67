package counter_test

import (
	"testing"
	"time"

	"github.com/alfreddev/fusegate/counter"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsZeroInterval(t *testing.T) {
	require.Panics(t, func() { counter.New(0, 3) })
	require.Panics(t, func() { counter.New(time.Second, 0) })
}

func TestAddAndSumOfLast(t *testing.T) {
	w := counter.New(10*time.Millisecond, 3)

	w.Add(5)
	require.Equal(t, uint64(5), w.SumOfLast(3))

	time.Sleep(12 * time.Millisecond)
	w.Add(2)
	require.Equal(t, uint64(7), w.SumOfLast(3))

	time.Sleep(12 * time.Millisecond)
	w.Add(1)
	require.Equal(t, uint64(8), w.SumOfLast(3))
}

func TestSumOfLastRollsOffAfterFullWindow(t *testing.T) {
	w := counter.New(10*time.Millisecond, 3)
	w.Add(5)
	time.Sleep(40 * time.Millisecond) // well past count*interval
	require.Equal(t, uint64(0), w.SumOfLast(3))
}

func TestSumOfLastMonotoneInN(t *testing.T) {
	w := counter.New(10*time.Millisecond, 5)
	w.Add(1)
	time.Sleep(12 * time.Millisecond)
	w.Add(2)
	time.Sleep(12 * time.Millisecond)
	w.Add(3)

	var prev uint64
	for n := 0; n <= 5; n++ {
		sum := w.SumOfLast(n)
		require.GreaterOrEqual(t, sum, prev)
		prev = sum
	}
}

func TestSumOfLastZeroReturnsZero(t *testing.T) {
	w := counter.New(time.Second, 10)
	w.Add(100)
	require.Equal(t, uint64(0), w.SumOfLast(0))
}

func TestReset(t *testing.T) {
	w := counter.New(time.Second, 5)
	w.Add(42)
	w.Reset()
	require.Equal(t, uint64(0), w.SumOfLast(5))
}

func TestConcurrentAddIsLinearizable(t *testing.T) {
	w := counter.New(time.Second, 60)
	const goroutines = 50
	done := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		go func() {
			w.Add(1)
			done <- struct{}{}
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}
	require.Equal(t, uint64(goroutines), w.SumOfLast(60))
}
