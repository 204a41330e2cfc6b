package pqueue

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"obc-hal-go/errcode"
	"obc-hal-go/x/timex"
)

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func TestCapacityTwoScenario(t *testing.T) {
	ctx := context.Background()
	q, err := New(2, 4)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(ctx, le32(5), 0))
	require.NoError(t, q.Enqueue(ctx, le32(7), 0))

	start := time.Now()
	err = q.Enqueue(ctx, le32(9), 100*time.Millisecond)
	waited := time.Since(start)
	require.Equal(t, errcode.Full, errcode.Of(err))
	require.GreaterOrEqual(t, waited, 90*time.Millisecond)
	require.Less(t, waited, time.Second)

	buf := make([]byte, 4)
	require.NoError(t, q.Dequeue(ctx, buf, 0))
	require.EqualValues(t, 5, binary.LittleEndian.Uint32(buf))
	require.NoError(t, q.Dequeue(ctx, buf, 0))
	require.EqualValues(t, 7, binary.LittleEndian.Uint32(buf))

	require.NoError(t, q.Enqueue(ctx, le32(9), 0))
	require.Equal(t, 1, q.Items())
}

func TestFIFOAcrossWrap(t *testing.T) {
	ctx := context.Background()
	q, err := New(3, 4)
	require.NoError(t, err)

	var got []uint32
	buf := make([]byte, 4)
	next := uint32(0)
	for round := 0; round < 50; round++ {
		n := round%3 + 1
		for i := 0; i < n; i++ {
			require.NoError(t, q.Enqueue(ctx, le32(next), 0))
			next++
		}
		for i := 0; i < n; i++ {
			require.NoError(t, q.Dequeue(ctx, buf, 0))
			got = append(got, binary.LittleEndian.Uint32(buf))
		}
	}
	for i, v := range got {
		require.EqualValues(t, i, v)
	}
}

func TestFullDoesNotCorruptState(t *testing.T) {
	ctx := context.Background()
	q, err := New(2, 4)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, le32(1), 0))
	require.NoError(t, q.Enqueue(ctx, le32(2), 0))

	for i := 0; i < 3; i++ {
		require.Equal(t, errcode.Full, errcode.Of(q.Enqueue(ctx, le32(99), 0)))
		require.Equal(t, 2, q.Items())
		require.Equal(t, 0, q.Free())
	}

	buf := make([]byte, 4)
	require.NoError(t, q.Dequeue(ctx, buf, 0))
	require.EqualValues(t, 1, binary.LittleEndian.Uint32(buf))
	require.NoError(t, q.Enqueue(ctx, le32(3), 0))
	require.NoError(t, q.Dequeue(ctx, buf, 0))
	require.EqualValues(t, 2, binary.LittleEndian.Uint32(buf))
	require.NoError(t, q.Dequeue(ctx, buf, 0))
	require.EqualValues(t, 3, binary.LittleEndian.Uint32(buf))
}

func TestEmptyPollAndTimedWait(t *testing.T) {
	ctx := context.Background()
	q, err := New(1, 4)
	require.NoError(t, err)
	buf := make([]byte, 4)

	require.Equal(t, errcode.Empty, errcode.Of(q.Dequeue(ctx, buf, 0)))

	start := time.Now()
	require.Equal(t, errcode.Empty, errcode.Of(q.Dequeue(ctx, buf, 30*time.Millisecond)))
	require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestBlockedConsumerWakesOnEnqueue(t *testing.T) {
	ctx := context.Background()
	q, err := New(1, 4)
	require.NoError(t, err)

	done := make(chan uint32, 1)
	go func() {
		buf := make([]byte, 4)
		if err := q.Dequeue(ctx, buf, timex.Forever); err == nil {
			done <- binary.LittleEndian.Uint32(buf)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, le32(42), 0))

	select {
	case v := <-done:
		require.EqualValues(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("consumer never woke")
	}
}

func TestCountsSumToCapacity(t *testing.T) {
	ctx := context.Background()
	q, err := New(8, 4)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = q.Enqueue(ctx, le32(uint32(p*1000+i)), timex.Forever)
			}
		}(p)
	}
	stop := make(chan struct{})
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		buf := make([]byte, 4)
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = q.Dequeue(ctx, buf, time.Millisecond)
		}
	}()
	for i := 0; i < 200; i++ {
		q.mu.Lock()
		items, size := q.items, q.size
		q.mu.Unlock()
		require.True(t, items >= 0 && items <= size)
	}
	wg.Wait()
	close(stop)
	<-consumerDone
	require.Equal(t, q.Cap(), q.Items()+q.Free())
}

func TestPerProducerOrderPreserved(t *testing.T) {
	ctx := context.Background()
	q, err := New(4, 4)
	require.NoError(t, err)

	const perProducer = 200
	var wg sync.WaitGroup
	for p := uint32(0); p < 3; p++ {
		wg.Add(1)
		go func(p uint32) {
			defer wg.Done()
			for i := uint32(0); i < perProducer; i++ {
				if err := q.Enqueue(ctx, le32(p<<16|i), timex.Forever); err != nil {
					t.Errorf("enqueue: %v", err)
					return
				}
			}
		}(p)
	}

	last := map[uint32]int{0: -1, 1: -1, 2: -1}
	buf := make([]byte, 4)
	for n := 0; n < 3*perProducer; n++ {
		require.NoError(t, q.Dequeue(ctx, buf, time.Second))
		v := binary.LittleEndian.Uint32(buf)
		p, i := v>>16, int(v&0xffff)
		require.Greater(t, i, last[p], "producer %d out of order", p)
		last[p] = i
	}
	wg.Wait()
}

func TestResetWakesProducers(t *testing.T) {
	ctx := context.Background()
	q, err := New(1, 4)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, le32(1), 0))

	res := make(chan error, 1)
	go func() { res <- q.Enqueue(ctx, le32(2), time.Second) }()
	time.Sleep(10 * time.Millisecond)
	q.Reset()

	select {
	case err := <-res:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("producer not released by Reset")
	}
	require.Equal(t, 1, q.Items())
}

func TestCloseReleasesWaiters(t *testing.T) {
	ctx := context.Background()
	q, err := New(1, 4)
	require.NoError(t, err)

	res := make(chan error, 1)
	go func() { res <- q.Dequeue(ctx, make([]byte, 4), timex.Forever) }()
	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-res:
		require.Equal(t, errcode.Error, errcode.Of(err))
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Close")
	}
}

func TestContextCancelEndsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q, err := New(1, 4)
	require.NoError(t, err)

	res := make(chan error, 1)
	go func() { res <- q.Dequeue(ctx, make([]byte, 4), timex.Forever) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-res:
		require.Equal(t, errcode.Error, errcode.Of(err))
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancel did not end wait")
	}
}

func TestArgumentChecks(t *testing.T) {
	_, err := New(0, 4)
	require.Equal(t, errcode.InvalidArg, errcode.Of(err))
	_, err = New(2, 0)
	require.Equal(t, errcode.InvalidArg, errcode.Of(err))
	_, err = New(0xFFFFFFFF, 0xFFFFFFFF)
	require.Equal(t, errcode.InvalidArg, errcode.Of(err))
	_, err = New(MaxBytes/8+1, 8)
	require.Equal(t, errcode.InvalidArg, errcode.Of(err))
	_, err = New(1, MaxBytes+1)
	require.Equal(t, errcode.InvalidArg, errcode.Of(err))

	q8, err := New(4, 8)
	require.NoError(t, err)
	require.Equal(t, 4, q8.Cap())
	require.Equal(t, 8, q8.ItemSize())

	q, err := New(2, 4)
	require.NoError(t, err)
	require.Equal(t, errcode.InvalidArg, errcode.Of(q.Enqueue(context.Background(), []byte{1, 2}, 0)))
	require.Equal(t, errcode.InvalidArg, errcode.Of(q.Dequeue(context.Background(), make([]byte, 3), 0)))
}
