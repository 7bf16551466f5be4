package hlc

import (
	"sync"
	"testing"
	"time"
)

func TestClock_Now(t *testing.T) {
	clock := NewClock()

	ts1 := clock.Now()
	if ts1 == 0 {
		t.Error("Wall time should not be zero")
	}

	ts2 := clock.Now()
	if ts2 <= ts1 {
		t.Errorf("Expected %d > %d", ts2, ts1)
	}
}

func TestClock_MonotonicIncrement(t *testing.T) {
	clock := NewClock()

	timestamps := make([]Timestamp, 100)
	for i := 0; i < 100; i++ {
		timestamps[i] = clock.Now()
	}

	for i := 1; i < len(timestamps); i++ {
		if timestamps[i] <= timestamps[i-1] {
			t.Errorf("Timestamp %d not after %d", i, i-1)
		}
	}
}

func TestClock_PhysicalTimeGoesBackwards(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	readings := []time.Time{
		base,
		base.Add(-5 * time.Second),
		base.Add(-5 * time.Second),
		base.Add(time.Second),
	}
	i := 0
	clock := NewClockWithSource(func() time.Time {
		r := readings[i]
		i++
		return r
	})

	ts1 := clock.Now()
	ts2 := clock.Now()
	ts3 := clock.Now()
	ts4 := clock.Now()

	if ts1.Nanos() != base.UnixNano() {
		t.Errorf("Expected first reading to pass through, got %d", ts1)
	}
	if ts2 != ts1+1 || ts3 != ts2+1 {
		t.Errorf("Expected logical increments while clock is behind: %d %d %d", ts1, ts2, ts3)
	}
	if ts4.Nanos() != base.Add(time.Second).UnixNano() {
		t.Errorf("Expected clock to follow physical time again, got %d", ts4)
	}
	if ts2.Seconds() < ts1.Seconds() {
		t.Error("Seconds went backwards")
	}
}

func TestClock_ConcurrentUnique(t *testing.T) {
	clock := NewClock()
	var mu sync.Mutex
	seen := make(map[Timestamp]bool)
	var wg sync.WaitGroup

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ts := clock.Now()
				mu.Lock()
				if seen[ts] {
					t.Errorf("duplicate timestamp %d", ts)
				}
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestTimestamp_Conversions(t *testing.T) {
	ts := Timestamp(1_702_345_678_901_000_000)
	if ts.Seconds() != 1_702_345_678 {
		t.Errorf("Seconds = %d", ts.Seconds())
	}
	if !ts.PhysicalTime().Equal(time.Unix(0, 1_702_345_678_901_000_000)) {
		t.Error("PhysicalTime mismatch")
	}
	if ts.String() == "" {
		t.Error("String should not be empty")
	}
}
