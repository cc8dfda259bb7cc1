package observable

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSet(t *testing.T) {
	v := New("a")
	assert.Equal(t, "a", v.Get())
	v.Set("b")
	assert.Equal(t, "b", v.Get())
}

func TestSubscribeDeliversCurrentValue(t *testing.T) {
	v := New(1)
	ch, cancel := v.Subscribe()
	defer cancel()

	assert.Equal(t, 1, <-ch)
}

func TestSubscribeConflates(t *testing.T) {
	v := New(0)
	ch, cancel := v.Subscribe()
	defer cancel()

	for i := 1; i <= 10; i++ {
		v.Set(i)
	}
	assert.Equal(t, 10, <-ch)

	select {
	case got := <-ch:
		t.Fatalf("unexpected extra value %d", got)
	default:
	}
}

func TestMultipleSubscribers(t *testing.T) {
	v := New("init")
	a, cancelA := v.Subscribe()
	b, cancelB := v.Subscribe()
	defer cancelA()
	defer cancelB()
	<-a
	<-b

	v.Set("next")
	assert.Equal(t, "next", <-a)
	assert.Equal(t, "next", <-b)
	assert.Equal(t, 2, v.Subscribers())
}

func TestCancelClosesChannel(t *testing.T) {
	v := New(0)
	ch, cancel := v.Subscribe()
	<-ch
	cancel()
	cancel() // idempotent

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, v.Subscribers())

	v.Set(1) // must not panic on the closed channel
}

func TestCloseEndsSubscriptions(t *testing.T) {
	v := New(0)
	ch, cancel := v.Subscribe()
	<-ch

	v.Close()
	_, ok := <-ch
	assert.False(t, ok)
	cancel()

	v.Set(5)
	assert.Equal(t, 0, v.Get(), "Set after Close is ignored")

	late, _ := v.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing to a closed value yields a closed channel")
}

func TestConcurrentReaders(t *testing.T) {
	v := New(0)
	const readers = 8
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		ch, cancel := v.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			for x := range ch {
				if x == 100 {
					return
				}
			}
		}()
	}

	for i := 1; i <= 100; i++ {
		v.Set(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "readers never saw the final value")
	}
}
