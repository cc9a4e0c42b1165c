package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	assert.GreaterOrEqual(t, c.Since(start), time.Duration(0))

	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
}

func TestMockClockNowSetAdvance(t *testing.T) {
	c := NewMockClock(epoch)
	assert.Equal(t, epoch, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, epoch.Add(90*time.Second), c.Now())
	assert.Equal(t, 90*time.Second, c.Since(epoch))

	later := epoch.Add(time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestMockTickerFiresOnAdvance(t *testing.T) {
	c := NewMockClock(epoch)
	tk := c.NewTicker(5 * time.Minute)

	c.Advance(4 * time.Minute)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(time.Minute)
	select {
	case got := <-tk.C():
		assert.Equal(t, epoch.Add(5*time.Minute), got)
	default:
		t.Fatal("ticker did not fire")
	}

	tk.Stop()
	c.Advance(10 * time.Minute)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockTickerTrigger(t *testing.T) {
	c := NewMockClock(epoch)
	tk := c.NewTicker(time.Hour)
	mt, ok := tk.(*MockTicker)
	require.True(t, ok)

	mt.Trigger(epoch)
	mt.Trigger(epoch) // dropped, channel is full
	assert.Equal(t, epoch, <-tk.C())
	select {
	case <-tk.C():
		t.Fatal("second trigger should have been dropped")
	default:
	}
}
