package shell

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"obc-hal-go/config"
	"obc-hal-go/errcode"
	"obc-hal-go/osal"
)

func newShell(t *testing.T) (*Shell, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.POSIX.TimerEngine = "heap"
	cfg.POSIX.PollIntervalMs = 20
	cfg.LogLevel = "error"
	require.NoError(t, osal.Init(cfg))
	var out bytes.Buffer
	sh := New(&out, nil)
	t.Cleanup(func() {
		sh.Close()
		require.NoError(t, osal.Shutdown())
	})
	return sh, &out
}

func lines(out *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
}

func TestQueueScript(t *testing.T) {
	sh, out := newShell(t)
	script := `
# two slot queue of 8 byte items
queue q 2 8
send q alpha
send q "bravo 2"
send q charlie 0
count q
recv q
recv q
recv q 20
`
	require.NoError(t, sh.Run(context.Background(), strings.NewReader(script), false))
	require.Equal(t, []string{
		"ok", "ok", "ok", "err timeout", "ok 2", "ok alpha", "ok bravo 2", "err timeout",
	}, lines(out))
}

func TestSemaphoreAndMutexScript(t *testing.T) {
	sh, out := newShell(t)
	script := `
sem s 2 1
take s
take s 0
give s
count s
sem b
give b
mutex m
owner m
lock m
owner m
unlock m
unlock m
`
	require.NoError(t, sh.Run(context.Background(), strings.NewReader(script), false))
	require.Equal(t, []string{
		"ok", "ok", "err timeout", "ok", "ok 1",
		"ok", "err error",
		"ok", "ok none", "ok", "ok external", "ok", "err error",
	}, lines(out))
}

func TestThreadHoldingMutex(t *testing.T) {
	sh, out := newShell(t)
	ctx := context.Background()
	require.True(t, sh.Exec(ctx, "mutex m"))
	require.True(t, sh.Exec(ctx, "thread w 5 lock m"))

	require.Eventually(t, func() bool {
		out.Reset()
		sh.Exec(ctx, "owner m")
		return out.String() == "ok w\n"
	}, time.Second, 10*time.Millisecond)

	out.Reset()
	require.False(t, sh.Exec(ctx, "lock m 20"))
	require.True(t, sh.Exec(ctx, "suspend w"))
	require.True(t, sh.Exec(ctx, "resume w"))
	require.True(t, sh.Exec(ctx, "delete w"))
	require.True(t, sh.Exec(ctx, "lock m 1000"))
	require.Equal(t, "err timeout\nok\nok\nok\nok\n", out.String())
}

func TestTimerScript(t *testing.T) {
	sh, out := newShell(t)
	ctx := context.Background()
	for _, l := range []string{"timer t periodic", "start t 20", "sleep 150", "stop t"} {
		require.True(t, sh.Exec(ctx, l), l)
	}
	out.Reset()
	require.True(t, sh.Exec(ctx, "fired t"))
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(out.String(), "ok ")))
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 4)

	out.Reset()
	require.False(t, sh.Exec(ctx, "timer x sometimes"))
	require.False(t, sh.Exec(ctx, "start t 0"))
	require.Equal(t, "err invalid_arg\nerr invalid_arg\n", out.String())
}

func TestListEchoAndErrors(t *testing.T) {
	sh, out := newShell(t)
	ctx := context.Background()
	script := []string{
		"queue q 1 1",
		"sem s",
		"mutex m",
		"list",
		"echo hello   'big world'",
		"bogus",
		"queue q 1 1",
		"queue",
		"send s x",
		"send q toolong",
		"count m",
		"recv nothere",
		"delete s",
		"delete s",
		"list",
		"send q 'unterminated",
	}
	for _, l := range script {
		sh.Exec(ctx, l)
	}
	require.Equal(t, []string{
		"ok", "ok", "ok",
		"ok m:mutex q:queue s:sem",
		"ok hello big world",
		"err invalid_arg",
		"err invalid_arg",
		"err invalid_arg",
		"err invalid_arg",
		"err invalid_arg",
		"err invalid_arg",
		"err invalid_arg",
		"ok",
		"err invalid_arg",
		"ok m:mutex q:queue",
		"err invalid_arg",
	}, lines(out))
}

func TestStrictStopsAtFirstFailure(t *testing.T) {
	sh, out := newShell(t)
	err := sh.Run(context.Background(), strings.NewReader("echo a\nbogus\necho b\n"), true)
	require.Equal(t, ErrScript, errcode.Of(err))
	require.Equal(t, []string{"ok a", "err invalid_arg"}, lines(out))
}

func TestHugeQueueIsAnError(t *testing.T) {
	sh, out := newShell(t)
	require.False(t, sh.Exec(context.Background(), "queue q 4294967295 4294967295"))
	require.True(t, sh.Exec(context.Background(), "list"))
	require.Equal(t, []string{"err invalid_arg", "ok"}, lines(out))
}
