package alarm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/alarm-beacon/internal/domain/alarm"
)

// fakeListener simulates the socket buffer on fake time.
type fakeListener struct {
	// mu protects pending and drains.
	mu sync.Mutex
	// pending is the number of buffered datagrams.
	pending int
	// drains counts Drain calls.
	drains int
	// notify wakes a blocked Wait.
	notify chan struct{}
}

func newFakeListener() *fakeListener {
	return &fakeListener{notify: make(chan struct{}, 1)}
}

// arrive buffers one datagram.
func (f *fakeListener) arrive() {
	f.mu.Lock()
	f.pending++
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// arriveAt buffers one datagram at each offset from start, in a background goroutine.
func (f *fakeListener) arriveAt(start time.Time, offsets ...time.Duration) {
	go func() {
		for _, offset := range offsets {
			time.Sleep(time.Until(start.Add(offset)))
			f.arrive()
		}
	}()
}

// Pending returns the number of buffered datagrams.
func (f *fakeListener) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pending
}

// Wait reports whether a datagram is buffered within timeout, without consuming it.
func (f *fakeListener) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if f.Pending() > 0 {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
			return f.Pending() > 0, nil
		case <-f.notify:
		}
	}
}

// Drain discards every buffered datagram.
func (f *fakeListener) Drain() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.pending
	f.pending = 0
	f.drains++

	return n, nil
}

// outputEvent is one recorded output change.
type outputEvent struct {
	// at is the offset from the start of the test.
	at time.Duration
	// beacon is the beacon level after the change.
	beacon bool
}

// recordingOutputs records beacon levels with fake timestamps.
type recordingOutputs struct {
	// start is the reference time for offsets.
	start time.Time
	// events is the history of output changes.
	events []outputEvent
}

// Ready records the beacon switching off.
func (r *recordingOutputs) Ready(context.Context) {
	r.events = append(r.events, outputEvent{at: time.Since(r.start), beacon: false})
}

// Alarm records the beacon switching on.
func (r *recordingOutputs) Alarm(context.Context) {
	r.events = append(r.events, outputEvent{at: time.Since(r.start), beacon: true})
}

// Beacon returns the last recorded beacon level.
func (r *recordingOutputs) Beacon() bool {
	if len(r.events) == 0 {
		return false
	}

	return r.events[len(r.events)-1].beacon
}

// transitionEvent is one observed notification.
type transitionEvent struct {
	// state is the reported state.
	state domain.State
	// triggers is the reported trigger count.
	triggers int
}

// recordingObserver remembers every notification.
type recordingObserver struct {
	// events is the history of notifications.
	events []transitionEvent
}

// AlarmChanged records the notification.
func (r *recordingObserver) AlarmChanged(_ context.Context, state domain.State, session domain.Session) {
	r.events = append(r.events, transitionEvent{state: state, triggers: session.ConsecutiveTriggers})
}

// newTestController builds a controller with default timing and recording collaborators.
func newTestController(
	t *testing.T,
	observers ...Observer,
) (*Controller, *fakeListener, *recordingOutputs) {
	t.Helper()

	var (
		lis = newFakeListener()
		out = &recordingOutputs{start: time.Now()}
	)

	c := NewController(context.Background(), lis, out, DefaultOptions(), observers...)

	return c, lis, out
}

// TestNewController_StartsReady verifies a fresh controller is idle with the beacon off.
func TestNewController_StartsReady(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		c, _, out := newTestController(t)

		require.Equal(t, domain.StateIdle, c.State())
		require.Equal(t, []outputEvent{{at: 0, beacon: false}}, out.events)
	})
}

// TestTrigger_SingleArrival covers the isolated trigger: 4s on, 4s cooldown, idle again.
func TestTrigger_SingleArrival(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		observer := new(recordingObserver)
		c, lis, out := newTestController(t, observer)

		lis.arrive()

		start := time.Now()
		session, err := c.Trigger(context.Background())

		require.NoError(t, err)
		require.Equal(t, 1, session.ConsecutiveTriggers)
		// The empty grace window adds to the active time.
		require.Equal(t, 8*time.Second+domain.DefaultGrace, time.Since(start))
		require.Equal(t, domain.StateIdle, c.State())
		require.Zero(t, lis.Pending())

		require.Equal(t, []outputEvent{
			{at: 0, beacon: false},
			{at: 0, beacon: true},
			{at: 4*time.Second + domain.DefaultGrace, beacon: false},
		}, out.events)

		require.Equal(t, []transitionEvent{
			{state: domain.StateActive, triggers: 1},
			{state: domain.StateCooldown, triggers: 1},
			{state: domain.StateIdle, triggers: 1},
		}, observer.events)
	})
}

// TestTrigger_ConsecutiveArrivals checks active and cooldown time for every queue depth.
func TestTrigger_ConsecutiveArrivals(t *testing.T) {
	t.Parallel()

	for k := 1; k <= domain.DefaultMaxQueue; k++ {
		t.Run(fmt.Sprintf("triggers=%d", k), func(t *testing.T) {
			t.Parallel()

			synctest.Test(t, func(t *testing.T) {
				c, lis, out := newTestController(t)

				// One arrival a second before each active window closes.
				offsets := make([]time.Duration, 0, k-1)
				for i := 1; i < k; i++ {
					offsets = append(offsets, time.Duration(4*i-1)*time.Second)
				}

				lis.arrive()

				start := time.Now()
				lis.arriveAt(start, offsets...)

				session, err := c.Trigger(context.Background())
				require.NoError(t, err)
				require.Equal(t, k, session.ConsecutiveTriggers)

				want := time.Duration(k) * domain.DefaultDuration

				// Beacon on at 0, off after k active periods and the final empty grace window.
				require.Equal(t, []outputEvent{
					{at: 0, beacon: false},
					{at: 0, beacon: true},
					{at: want + domain.DefaultGrace, beacon: false},
				}, out.events)

				// Cooldown matches active time.
				require.Equal(t, 2*want+domain.DefaultGrace, time.Since(start))
			})
		})
	}
}

// TestTrigger_QueueCap ensures sustained triggering stops at the cap and
// that the arrival at the cap is discarded without extending.
func TestTrigger_QueueCap(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		observer := new(recordingObserver)
		c, lis, out := newTestController(t, observer)

		lis.arrive()

		start := time.Now()
		lis.arriveAt(start, 3*time.Second, 7*time.Second, 11*time.Second, 15*time.Second, 19*time.Second)

		session, err := c.Trigger(context.Background())
		require.NoError(t, err)
		require.Equal(t, domain.DefaultMaxQueue, session.ConsecutiveTriggers)
		require.Equal(t, 20*time.Second, out.events[len(out.events)-1].at)
		require.Equal(t, 40*time.Second, time.Since(start))
		require.Zero(t, lis.Pending())

		// Monotonic, never above the cap.
		previous := 0
		for _, e := range observer.events {
			require.GreaterOrEqual(t, e.triggers, previous)
			require.LessOrEqual(t, e.triggers, domain.DefaultMaxQueue)

			previous = e.triggers
		}
	})
}

// TestTrigger_CooldownArrivalsStayBuffered verifies arrivals during cooldown
// are neither drained nor acted on until the cooldown is over.
func TestTrigger_CooldownArrivalsStayBuffered(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		c, lis, out := newTestController(t)

		lis.arrive()

		start := time.Now()

		// Cooldown runs from 4.01s to 8.01s.
		lis.arriveAt(start, 4*time.Second+500*time.Millisecond, 6*time.Second)

		_, err := c.Trigger(context.Background())
		require.NoError(t, err)

		end := time.Since(start)
		require.Equal(t, 8*time.Second+domain.DefaultGrace, end)
		require.False(t, out.Beacon())
		require.Equal(t, 2, lis.Pending())

		// The buffered arrivals are seen by the next poll and start a new episode.
		ready, err := lis.Wait(context.Background(), time.Second)
		require.NoError(t, err)
		require.True(t, ready)

		session, err := c.Trigger(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, session.ConsecutiveTriggers)
		require.Equal(t, outputEvent{at: end, beacon: true}, out.events[3])
		require.Zero(t, lis.Pending())
	})
}

// TestTrigger_ArrivalsWithinOneWindow shows that arrivals sharing an active
// window collapse into a single retrigger, since the drain discards them all.
func TestTrigger_ArrivalsWithinOneWindow(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		c, lis, _ := newTestController(t)

		lis.arrive()

		start := time.Now()
		lis.arriveAt(start, time.Second, 2*time.Second)

		session, err := c.Trigger(context.Background())
		require.NoError(t, err)
		require.Equal(t, 2, session.ConsecutiveTriggers)
		require.Equal(t, 16*time.Second+domain.DefaultGrace, time.Since(start))
	})
}

// TestTrigger_ThreeSpacedArrivals covers three triggers landing in successive
// windows: cooldown is 12s.
func TestTrigger_ThreeSpacedArrivals(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		observer := new(recordingObserver)
		c, lis, out := newTestController(t, observer)

		lis.arrive()

		start := time.Now()
		lis.arriveAt(start, 3*time.Second, 7*time.Second)

		session, err := c.Trigger(context.Background())
		require.NoError(t, err)
		require.Equal(t, 3, session.ConsecutiveTriggers)

		cooldownStart := out.events[len(out.events)-1].at
		require.Equal(t, 12*time.Second+domain.DefaultGrace, cooldownStart)
		require.Equal(t, 12*time.Second, time.Since(start)-cooldownStart)
		require.Equal(t, 12*time.Second, session.Cooldown(domain.DefaultDuration))
	})
}

// TestTrigger_Canceled aborts mid-episode with the beacon off.
func TestTrigger_Canceled(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		c, lis, out := newTestController(t)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		lis.arrive()

		_, err := c.Trigger(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.False(t, out.Beacon())
		require.Equal(t, domain.StateIdle, c.State())
	})
}

// reentrantObserver calls Trigger while the controller is active.
type reentrantObserver struct {
	// controller is the controller under test.
	controller *Controller
	// err is the result of the reentrant call.
	err error
}

// AlarmChanged tries to start a second episode on activation.
func (r *reentrantObserver) AlarmChanged(ctx context.Context, state domain.State, _ domain.Session) {
	if state == domain.StateActive && r.err == nil {
		_, r.err = r.controller.Trigger(ctx)
	}
}

// TestTrigger_NotIdle rejects a trigger during an episode.
func TestTrigger_NotIdle(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		observer := new(reentrantObserver)
		c, lis, _ := newTestController(t, observer)
		observer.controller = c

		lis.arrive()

		_, err := c.Trigger(context.Background())
		require.NoError(t, err)
		require.ErrorIs(t, observer.err, ErrNotIdle)
	})
}
