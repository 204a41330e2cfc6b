package shell

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"sync/atomic"

	"obc-hal-go/errcode"
	"obc-hal-go/osal"
)

const (
	kindQueue  = "queue"
	kindSem    = "sem"
	kindMutex  = "mutex"
	kindTimer  = "timer"
	kindThread = "thread"
)

type command struct {
	min, max int // argument count; max -1 is unbounded
	usage    string
	run      func(ctx context.Context, s *Shell, args []string) (string, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"queue":   {3, 3, "<name> <length> <item-size>", cmdQueue},
		"send":    {2, 3, "<queue> <data> [timeout]", cmdSend},
		"recv":    {1, 2, "<queue> [timeout]", cmdRecv},
		"count":   {1, 1, "<queue|sem>", cmdCount},
		"sem":     {1, 3, "<name> [max [initial]]", cmdSem},
		"give":    {1, 1, "<sem>", cmdGive},
		"take":    {1, 2, "<sem> [timeout]", cmdTake},
		"mutex":   {1, 1, "<name>", cmdMutex},
		"lock":    {1, 2, "<mutex> [timeout]", cmdLock},
		"unlock":  {1, 1, "<mutex>", cmdUnlock},
		"owner":   {1, 1, "<mutex>", cmdOwner},
		"timer":   {2, 2, "<name> <once|periodic>", cmdTimer},
		"start":   {2, 2, "<timer> <period-ms>", cmdStart},
		"stop":    {1, 1, "<timer>", cmdStop},
		"fired":   {1, 1, "<timer>", cmdFired},
		"thread":  {1, 4, "<name> [priority] [lock <mutex>]", cmdThread},
		"suspend": {1, 1, "<thread>", cmdSuspend},
		"resume":  {1, 1, "<thread>", cmdResume},
		"state":   {1, 1, "<thread>", cmdState},
		"sleep":   {1, 1, "<ms>", cmdSleep},
		"tick":    {0, 0, "", cmdTick},
		"delete":  {1, 1, "<name>", cmdDelete},
		"list":    {0, 0, "", cmdList},
		"echo":    {0, -1, "[words...]", cmdEcho},
	}
}

func cmdQueue(_ context.Context, s *Shell, a []string) (string, error) {
	n, err := u32(a[1])
	if err != nil {
		return "", err
	}
	size, err := u32(a[2])
	if err != nil {
		return "", err
	}
	q, err := osal.QueueCreate(n, size)
	if err != nil {
		return "", err
	}
	if err := s.add(a[0], &object{kind: kindQueue, queue: q}); err != nil {
		_ = osal.QueueDelete(q)
		return "", err
	}
	return "", nil
}

func cmdSend(ctx context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], kindQueue)
	if err != nil {
		return "", err
	}
	ms, err := timeout(a, 2)
	if err != nil {
		return "", err
	}
	if uint32(len(a[1])) > o.queue.ItemSize {
		return "", &errcode.E{C: errcode.InvalidArg, Op: "send", Msg: "data longer than item size"}
	}
	item := make([]byte, o.queue.ItemSize)
	copy(item, a[1])
	return "", osal.QueueSend(ctx, o.queue, item, ms)
}

func cmdRecv(ctx context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], kindQueue)
	if err != nil {
		return "", err
	}
	ms, err := timeout(a, 1)
	if err != nil {
		return "", err
	}
	buf := make([]byte, o.queue.ItemSize)
	if err := osal.QueueReceive(ctx, o.queue, buf, ms); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf, "\x00")), nil
}

func cmdCount(_ context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], "")
	if err != nil {
		return "", err
	}
	var n uint32
	switch o.kind {
	case kindQueue:
		n, err = osal.QueueGetCount(o.queue)
	case kindSem:
		n, err = osal.SemGetCount(o.sem)
	default:
		return "", &errcode.E{C: errcode.InvalidArg, Op: "count", Msg: a[0] + " is a " + o.kind}
	}
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(uint64(n), 10), nil
}

func cmdSem(_ context.Context, s *Shell, a []string) (string, error) {
	var (
		sem *osal.Semaphore
		err error
	)
	if len(a) == 1 {
		sem, err = osal.SemCreateBinary()
	} else {
		var max, initial uint32
		if max, err = u32(a[1]); err != nil {
			return "", err
		}
		if len(a) == 3 {
			if initial, err = u32(a[2]); err != nil {
				return "", err
			}
		}
		sem, err = osal.SemCreateCounting(max, initial)
	}
	if err != nil {
		return "", err
	}
	if err := s.add(a[0], &object{kind: kindSem, sem: sem}); err != nil {
		_ = osal.SemDelete(sem)
		return "", err
	}
	return "", nil
}

func cmdGive(_ context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], kindSem)
	if err != nil {
		return "", err
	}
	return "", osal.SemGive(o.sem)
}

func cmdTake(ctx context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], kindSem)
	if err != nil {
		return "", err
	}
	ms, err := timeout(a, 1)
	if err != nil {
		return "", err
	}
	return "", osal.SemTake(ctx, o.sem, ms)
}

func cmdMutex(_ context.Context, s *Shell, a []string) (string, error) {
	m, err := osal.MutexCreate()
	if err != nil {
		return "", err
	}
	if err := s.add(a[0], &object{kind: kindMutex, mutex: m}); err != nil {
		_ = osal.MutexDelete(m)
		return "", err
	}
	return "", nil
}

func cmdLock(ctx context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], kindMutex)
	if err != nil {
		return "", err
	}
	ms, err := timeout(a, 1)
	if err != nil {
		return "", err
	}
	return "", osal.MutexTake(ctx, o.mutex, ms)
}

func cmdUnlock(ctx context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], kindMutex)
	if err != nil {
		return "", err
	}
	return "", osal.MutexGive(ctx, o.mutex)
}

func cmdOwner(_ context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], kindMutex)
	if err != nil {
		return "", err
	}
	t, err := osal.MutexGetOwner(o.mutex)
	if err != nil {
		return "", err
	}
	switch {
	case t != nil:
		return t.Name, nil
	case o.mutex.Value() == 0:
		return "external", nil
	default:
		return "none", nil
	}
}

func cmdTimer(_ context.Context, s *Shell, a []string) (string, error) {
	var mode = osal.TimerOneShot
	switch a[1] {
	case "once":
	case "periodic":
		mode = osal.TimerPeriodic
	default:
		return "", &errcode.E{C: errcode.InvalidArg, Op: "timer", Msg: "mode must be once or periodic"}
	}
	fired := new(atomic.Uint64)
	t, err := osal.TimerCreate(osal.TimerConfig{
		Name:     a[0],
		Mode:     mode,
		Callback: func(any) { fired.Add(1) },
	})
	if err != nil {
		return "", err
	}
	if err := s.add(a[0], &object{kind: kindTimer, timer: t, fired: fired}); err != nil {
		_ = osal.TimerDelete(t)
		return "", err
	}
	return "", nil
}

func cmdStart(_ context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], kindTimer)
	if err != nil {
		return "", err
	}
	ms, err := u32(a[1])
	if err != nil {
		return "", err
	}
	return "", osal.TimerStart(o.timer, ms)
}

func cmdStop(_ context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], kindTimer)
	if err != nil {
		return "", err
	}
	return "", osal.TimerStop(o.timer)
}

func cmdFired(_ context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], kindTimer)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(o.fired.Load(), 10), nil
}

// cmdThread starts an idle thread. With "lock <mutex>" it takes the mutex
// first and holds it until deleted.
func cmdThread(_ context.Context, s *Shell, a []string) (string, error) {
	var (
		prio int
		hold *osal.Mutex
	)
	rest := a[1:]
	if len(rest) == 1 || len(rest) == 3 {
		p, err := strconv.Atoi(rest[0])
		if err != nil {
			return "", &errcode.E{C: errcode.InvalidArg, Op: "thread", Msg: "bad priority"}
		}
		prio, rest = p, rest[1:]
	}
	if len(rest) == 2 {
		if rest[0] != "lock" {
			return "", &errcode.E{C: errcode.InvalidArg, Op: "thread", Msg: "expected lock <mutex>"}
		}
		o, err := s.lookup(rest[1], kindMutex)
		if err != nil {
			return "", err
		}
		hold = o.mutex
	}
	t, err := osal.ThreadCreate(osal.ThreadConfig{
		Name:     a[0],
		Priority: prio,
		Entry: func(ctx context.Context, _ any) {
			if hold != nil {
				if err := osal.MutexTake(ctx, hold, osal.MaxTimeout); err != nil {
					return
				}
				defer osal.MutexGive(ctx, hold)
			}
			for osal.Delay(ctx, 10) == nil {
			}
		},
	})
	if err != nil {
		return "", err
	}
	if err := s.add(a[0], &object{kind: kindThread, th: t}); err != nil {
		_ = osal.ThreadDelete(t)
		return "", err
	}
	return "", nil
}

func cmdSuspend(_ context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], kindThread)
	if err != nil {
		return "", err
	}
	return "", osal.ThreadSuspend(o.th)
}

func cmdResume(_ context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], kindThread)
	if err != nil {
		return "", err
	}
	return "", osal.ThreadResume(o.th)
}

func cmdState(_ context.Context, s *Shell, a []string) (string, error) {
	o, err := s.lookup(a[0], kindThread)
	if err != nil {
		return "", err
	}
	st, err := osal.ThreadGetState(o.th)
	if err != nil {
		return "", err
	}
	return st.String(), nil
}

func cmdSleep(ctx context.Context, _ *Shell, a []string) (string, error) {
	ms, err := u32(a[0])
	if err != nil {
		return "", err
	}
	return "", osal.Delay(ctx, ms)
}

func cmdTick(context.Context, *Shell, []string) (string, error) {
	return strconv.FormatUint(uint64(osal.TickCount()), 10), nil
}

func cmdDelete(_ context.Context, s *Shell, a []string) (string, error) {
	return "", s.remove(a[0])
}

func cmdList(_ context.Context, s *Shell, _ []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := s.names()
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + ":" + s.objs[n].kind
	}
	return strings.Join(parts, " "), nil
}

func cmdEcho(_ context.Context, _ *Shell, a []string) (string, error) {
	return strings.Join(a, " "), nil
}
