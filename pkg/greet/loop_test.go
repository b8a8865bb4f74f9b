package greet

import (
	"context"
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-temi/pkg/interrupt"
	"github.com/teslashibe/go-temi/pkg/perception"
	"github.com/teslashibe/go-temi/pkg/robot"
	"github.com/teslashibe/go-temi/pkg/speech"
	"github.com/teslashibe/go-temi/pkg/wait"
)

func TestPoolNeverRepeatsConsecutively(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		p := NewPool(5, rand.New(rand.NewPCG(seed, seed+1)))
		prev := -1
		for i := 0; i < 500; i++ {
			got := p.Draw()
			require.NotEqual(t, prev, got, "seed %d draw %d", seed, i)
			prev = got
		}
	}
}

func TestPoolCyclesArePermutations(t *testing.T) {
	p := NewPool(5, rand.New(rand.NewPCG(7, 11)))

	for cycle := 0; cycle < 10; cycle++ {
		var drawn []int
		for i := 0; i < 5; i++ {
			drawn = append(drawn, p.Draw())
		}
		sort.Ints(drawn)
		assert.Equal(t, []int{0, 1, 2, 3, 4}, drawn)
	}
}

func TestPoolSingleIndex(t *testing.T) {
	p := NewPool(1, rand.New(rand.NewPCG(1, 1)))
	for i := 0; i < 5; i++ {
		assert.Equal(t, 0, p.Draw())
	}
	assert.Equal(t, 1, NewPool(0, rand.New(rand.NewPCG(1, 1))).Size())
}

type rig struct {
	mock    *robot.Mock
	tracker *perception.Tracker
	loop    *Loop
}

func newRig(t *testing.T, adjust func(*Config)) *rig {
	t.Helper()
	mock := robot.NewMock()
	waiter := wait.New(
		wait.WithTick(time.Millisecond),
		wait.WithPoll(time.Millisecond),
		wait.WithSignal(mock.Signal()),
	)
	tracker := perception.NewTracker(mock, perception.DefaultConfig())
	monitor, err := interrupt.New(mock, tracker, interrupt.WithWaiter(waiter))
	require.NoError(t, err)
	scfg := speech.DefaultConfig()
	scfg.Waiter = waiter
	arbiter := speech.New(mock, monitor, scfg)

	cfg := DefaultConfig()
	cfg.DetectionDelay = 5 * time.Millisecond
	cfg.Window = time.Second
	cfg.Absence = 10 * time.Millisecond
	cfg.Cooldown = 10 * time.Millisecond
	cfg.Rand = rand.New(rand.NewPCG(3, 4))
	cfg.Waiter = waiter
	if adjust != nil {
		adjust(&cfg)
	}
	return &rig{mock: mock, tracker: tracker, loop: New(mock, tracker, arbiter, cfg)}
}

func (r *rig) run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (r *rig) greetings() []string {
	var out []string
	for _, text := range r.mock.Spoken() {
		for _, g := range DefaultGreetings {
			if text == g {
				out = append(out, text)
			}
		}
	}
	return out
}

func TestGreetsAndDisengagesWhenUserLeaves(t *testing.T) {
	r := newRig(t, nil)
	r.tracker.Step(perception.Sample{Detected: true, Distance: 2.0})
	r.run(t)

	require.Eventually(t, func() bool { return len(r.greetings()) == 1 }, 2*time.Second, time.Millisecond)
	assert.True(t, r.loop.Engaged())
	assert.True(t, r.loop.IdleFaceActive())
	assert.GreaterOrEqual(t, r.mock.CallCount("Follow"), 1)
	assert.GreaterOrEqual(t, r.mock.CallCount("Stop"), 1)

	r.tracker.Step(perception.Sample{Detected: false})
	require.Eventually(t, func() bool { return !r.loop.Engaged() }, 2*time.Second, time.Millisecond)
	assert.False(t, r.loop.IdleFaceActive())
	assert.Len(t, r.greetings(), 1)
}

func TestBriefAbsenceKeepsEngagement(t *testing.T) {
	r := newRig(t, func(c *Config) { c.Absence = 500 * time.Millisecond })
	r.tracker.Step(perception.Sample{Detected: true, Distance: 2.0})
	r.run(t)

	require.Eventually(t, r.loop.Engaged, 2*time.Second, time.Millisecond)
	r.tracker.Step(perception.Sample{Detected: false})
	time.Sleep(20 * time.Millisecond)
	r.tracker.Step(perception.Sample{Detected: true, Distance: 2.0})
	time.Sleep(20 * time.Millisecond)

	assert.True(t, r.loop.Engaged())
	assert.Len(t, r.greetings(), 1)
}

func TestCloseUserTiltsAndStopsFollowing(t *testing.T) {
	r := newRig(t, nil)
	r.tracker.Step(perception.Sample{Detected: true, Distance: 2.0})
	r.run(t)

	require.Eventually(t, r.loop.Engaged, 2*time.Second, time.Millisecond)
	follows := r.mock.CallCount("Follow")

	r.tracker.Step(perception.Sample{Detected: true, Distance: 0.5})
	require.Eventually(t, func() bool { return r.mock.CallCount("Tilt") == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 60, r.mock.CallsTo("Tilt")[0].Args[0])

	r.tracker.Step(perception.Sample{Detected: true, Distance: 1.2})
	require.Eventually(t, func() bool { return r.mock.CallCount("Follow") == follows+1 }, time.Second, time.Millisecond)
}

func TestWindowElapsesAndRegreets(t *testing.T) {
	r := newRig(t, func(c *Config) { c.Window = 20 * time.Millisecond })
	r.tracker.Step(perception.Sample{Detected: true, Distance: 2.0})
	r.run(t)

	require.Eventually(t, func() bool { return len(r.greetings()) >= 3 }, 2*time.Second, time.Millisecond)
	g := r.greetings()
	for i := 1; i < len(g); i++ {
		assert.NotEqual(t, g[i-1], g[i], "consecutive greetings differ")
	}
}

func TestGreetModeOff(t *testing.T) {
	r := newRig(t, nil)
	r.loop.SetGreetMode(false)
	r.tracker.Step(perception.Sample{Detected: true, Distance: 2.0})
	r.run(t)

	require.Eventually(t, func() bool { return r.mock.CallCount("Tilt") >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, r.greetings())
	assert.False(t, r.loop.Engaged())

	r.loop.SetGreetMode(true)
	require.Eventually(t, func() bool { return len(r.greetings()) == 1 }, 2*time.Second, time.Millisecond)
}

func TestFlickerIsDebounced(t *testing.T) {
	r := newRig(t, func(c *Config) { c.DetectionDelay = 50 * time.Millisecond })
	r.run(t)

	r.tracker.Step(perception.Sample{Detected: true, Distance: 2.0})
	time.Sleep(5 * time.Millisecond)
	r.tracker.Step(perception.Sample{Detected: false})
	time.Sleep(80 * time.Millisecond)

	assert.Empty(t, r.greetings())
}

func TestOnChange(t *testing.T) {
	changes := 0
	r := newRig(t, func(c *Config) { c.OnChange = func() { changes++ } })

	r.loop.SetGreetMode(false)
	r.loop.SetGreetMode(false)
	r.loop.SetGreetMode(true)
	assert.Equal(t, 2, changes)
}
