package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerPool_AcquireRelease(t *testing.T) {
	r := require.New(t)

	timer := AcquireTimer(10 * time.Millisecond)
	r.NotNil(timer)

	select {
	case <-timer.C:
	case <-time.After(time.Second):
		t.Fatal("acquired timer never fired")
	}

	// Releasing an expired timer must leave the pool usable.
	ReleaseTimer(timer)

	timer = AcquireTimer(10 * time.Millisecond)
	r.NotNil(timer)

	select {
	case <-timer.C:
	case <-time.After(time.Second):
		t.Fatal("recycled timer never fired")
	}

	ReleaseTimer(timer)
}

func TestTimerPool_ReleasedTimerDoesNotFire(t *testing.T) {
	timer := AcquireTimer(30 * time.Millisecond)
	ReleaseTimer(timer)

	// A released timer is stopped; waiting past its old deadline must
	// not produce a tick for whoever drew it from the pool next.
	fresh := AcquireTimer(200 * time.Millisecond)
	defer ReleaseTimer(fresh)

	begin := time.Now()
	select {
	case <-fresh.C:
		if elapsed := time.Since(begin); elapsed < 150*time.Millisecond {
			t.Fatalf("recycled timer fired early after %v", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("recycled timer never fired")
	}
}

func TestTimerPool_ReleaseWithPendingTick(t *testing.T) {
	r := require.New(t)

	// The timer expires with its tick unread. Release must clear the
	// pending tick so the next acquire sees a clean deadline.
	timer := AcquireTimer(20 * time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	ReleaseTimer(timer)

	begin := time.Now()
	next := AcquireTimer(100 * time.Millisecond)
	r.NotNil(next)

	select {
	case at := <-next.C:
		r.GreaterOrEqual(at.Sub(begin), 80*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("rearmed timer never fired")
	}

	ReleaseTimer(next)
}

func TestTimerPool_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for n := 0; n < 64; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				timer := AcquireTimer(time.Millisecond)
				<-timer.C
				ReleaseTimer(timer)
			}
		}()
	}
	wg.Wait()
}
