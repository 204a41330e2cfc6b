// Package shell runs line-oriented RAL scripts against the OSAL.
//
// Each line is one command, tokenised with shell quoting rules. The result
// is written as a single line: "ok", "ok <value>" or "err <code>". Objects
// are created under a name and referred to by it afterwards.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/shlex"
	"golang.org/x/exp/slices"

	"obc-hal-go/errcode"
	"obc-hal-go/osal"
)

// ErrScript is returned by Run in strict mode when a line failed.
var ErrScript = errcode.Code("script_failed")

type object struct {
	kind  string
	queue *osal.Queue
	sem   *osal.Semaphore
	mutex *osal.Mutex
	timer *osal.Timer
	fired *atomic.Uint64
	th    *osal.Thread
}

type Shell struct {
	out io.Writer
	log *slog.Logger

	mu   sync.Mutex
	objs map[string]*object
}

func New(out io.Writer, log *slog.Logger) *Shell {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Shell{out: out, log: log.With("component", "shell"), objs: make(map[string]*object)}
}

// Run executes every line of r. With strict set it stops at the first
// failing line and returns ErrScript.
func (s *Shell) Run(ctx context.Context, r io.Reader, strict bool) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		ok := s.Exec(ctx, sc.Text())
		if !ok && strict {
			return &errcode.E{C: ErrScript, Op: "shell", Msg: "line " + strconv.Itoa(n)}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return sc.Err()
}

// Exec runs one line and reports whether it succeeded. Blank lines and
// comments succeed without output.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return true
	}
	args, err := shlex.Split(line)
	if err != nil {
		s.reply("", &errcode.E{C: errcode.InvalidArg, Op: "parse", Err: err})
		return false
	}
	if len(args) == 0 {
		return true
	}
	c, ok := commands[args[0]]
	if !ok {
		s.reply("", &errcode.E{C: errcode.InvalidArg, Op: args[0], Msg: "unknown command"})
		return false
	}
	if n := len(args) - 1; n < c.min || (c.max >= 0 && n > c.max) {
		s.reply("", &errcode.E{C: errcode.InvalidArg, Op: args[0], Msg: "usage: " + args[0] + " " + c.usage})
		return false
	}
	v, err := c.run(ctx, s, args[1:])
	s.reply(v, err)
	return err == nil
}

func (s *Shell) reply(v string, err error) {
	switch {
	case err != nil:
		s.log.Debug("command failed", "err", err)
		fmt.Fprintf(s.out, "err %s\n", errcode.Status(err))
	case v == "":
		fmt.Fprintln(s.out, "ok")
	default:
		fmt.Fprintf(s.out, "ok %s\n", v)
	}
}

// Close deletes every object the shell created.
func (s *Shell) Close() {
	s.mu.Lock()
	names := s.names()
	s.mu.Unlock()
	for _, n := range names {
		_ = s.remove(n)
	}
}

func (s *Shell) names() []string {
	out := make([]string, 0, len(s.objs))
	for n := range s.objs {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func (s *Shell) add(name string, o *object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.objs[name]; dup {
		return &errcode.E{C: errcode.InvalidArg, Op: "create", Msg: "name in use: " + name}
	}
	s.objs[name] = o
	return nil
}

func (s *Shell) lookup(name, kind string) (*object, error) {
	s.mu.Lock()
	o, ok := s.objs[name]
	s.mu.Unlock()
	if !ok {
		return nil, &errcode.E{C: errcode.InvalidArg, Op: "lookup", Msg: "no object " + name}
	}
	if kind != "" && o.kind != kind {
		return nil, &errcode.E{C: errcode.InvalidArg, Op: "lookup", Msg: name + " is a " + o.kind}
	}
	return o, nil
}

func (s *Shell) remove(name string) error {
	s.mu.Lock()
	o, ok := s.objs[name]
	delete(s.objs, name)
	s.mu.Unlock()
	if !ok {
		return &errcode.E{C: errcode.InvalidArg, Op: "delete", Msg: "no object " + name}
	}
	switch o.kind {
	case kindQueue:
		return osal.QueueDelete(o.queue)
	case kindSem:
		return osal.SemDelete(o.sem)
	case kindMutex:
		return osal.MutexDelete(o.mutex)
	case kindTimer:
		return osal.TimerDelete(o.timer)
	default:
		return osal.ThreadDelete(o.th)
	}
}

func u32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, &errcode.E{C: errcode.InvalidArg, Op: "parse", Msg: strconv.Quote(s)}
	}
	return uint32(v), nil
}

// timeout reads an optional trailing timeout in ms. "forever" blocks.
func timeout(args []string, i int) (uint32, error) {
	if len(args) <= i {
		return 0, nil
	}
	if args[i] == "forever" {
		return osal.MaxTimeout, nil
	}
	return u32(args[i])
}
