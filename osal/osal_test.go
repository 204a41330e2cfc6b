//go:build !cmsis

package osal

import (
	"bytes"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"obc-hal-go/config"
	"obc-hal-go/errcode"
)

func setup(t *testing.T) {
	t.Helper()
	cfg := config.Default()
	cfg.POSIX.TimerEngine = "heap"
	cfg.POSIX.PollIntervalMs = 20
	require.NoError(t, Init(cfg, WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))))
	t.Cleanup(func() { require.NoError(t, Shutdown()) })
}

func TestCallsBeforeInit(t *testing.T) {
	require.Nil(t, Default())
	_, err := QueueCreate(1, 1)
	require.Equal(t, errcode.Error, errcode.Of(err))
	require.Equal(t, errcode.Error, errcode.Of(SemGive(nil)))
	require.Zero(t, TickCount())
	require.NoError(t, Shutdown())
}

func TestInitTwiceAndBackendMismatch(t *testing.T) {
	setup(t)
	require.Equal(t, errcode.Error, errcode.Of(Init(config.Default())))

	require.NoError(t, Shutdown())
	cfg := config.Default()
	cfg.Backend = config.BackendCMSIS
	require.Equal(t, errcode.InvalidArg, errcode.Of(Init(cfg)))

	cfg.Backend = BackendName
	require.NoError(t, Init(cfg, WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))))
}

func TestQueueRoundTrip(t *testing.T) {
	setup(t)
	ctx := context.Background()

	q, err := QueueCreate(2, 4)
	require.NoError(t, err)
	require.NoError(t, QueueSend(ctx, q, []byte("abcd"), 0))
	n, err := QueueGetCount(q)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	free, err := QueueGetRemainCount(q)
	require.NoError(t, err)
	require.EqualValues(t, 1, free)

	buf := make([]byte, 4)
	require.NoError(t, QueueReceive(ctx, q, buf, 0))
	require.Equal(t, "abcd", string(buf))
	require.Equal(t, errcode.Timeout, errcode.Of(QueueReceive(ctx, q, buf, 10)))

	require.NoError(t, QueueFlush(q))
	require.NoError(t, QueueDelete(q))
	require.Equal(t, errcode.InvalidArg, errcode.Of(QueueDelete(q)))
}

func TestSemaphoreMutexAndThread(t *testing.T) {
	setup(t)
	ctx := context.Background()

	s, err := SemCreateCounting(2, 0)
	require.NoError(t, err)
	m, err := MutexCreate()
	require.NoError(t, err)

	th, err := ThreadCreate(ThreadConfig{
		Name: "worker",
		Entry: func(ctx context.Context, _ any) {
			if MutexTake(ctx, m, MaxTimeout) != nil {
				return
			}
			_ = SemGive(s)
			<-ctx.Done()
		},
	})
	require.NoError(t, err)

	require.NoError(t, SemTake(ctx, s, 1000))
	owner, err := MutexGetOwner(m)
	require.NoError(t, err)
	require.Same(t, th, owner)

	name, err := ThreadGetName(th)
	require.NoError(t, err)
	require.Equal(t, "worker", name)
	require.NoError(t, ThreadSetPriority(th, 7))
	p, err := ThreadGetPriority(th)
	require.NoError(t, err)
	require.Equal(t, 7, p)

	require.NoError(t, ThreadDelete(th))
	require.NoError(t, SemDelete(s))
	require.NoError(t, MutexDelete(m))
}

func TestTimerAndDelay(t *testing.T) {
	setup(t)
	var fired atomic.Int32
	tm, err := TimerCreate(TimerConfig{Name: "tick", Mode: TimerPeriodic, Callback: func(any) { fired.Add(1) }})
	require.NoError(t, err)
	require.NoError(t, TimerStart(tm, 20))

	start := time.Now()
	require.NoError(t, Delay(context.Background(), 100))
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	active, err := TimerIsActive(tm)
	require.NoError(t, err)
	require.True(t, active)
	require.NoError(t, TimerStop(tm))
	require.NoError(t, TimerDelete(tm))
	require.GreaterOrEqual(t, fired.Load(), int32(2))
}
