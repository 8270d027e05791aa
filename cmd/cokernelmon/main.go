// main.go - cokernelmon: interactive monitor for a running cothread kernel
//
// Boots a demo kernel with a handful of worker threads, then drives three
// goroutines off an errgroup: a raw-stdin line reader, a periodic status
// redraw, and command dispatch against the kernel. Modeled on the
// teacher's terminal_host.go (raw-mode stdin) and debug_monitor.go
// (command dispatch), adapted from a CPU debugger to a thread-table
// monitor.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/kestrelsys/cothread/kernel"
)

func main() {
	threads := flag.Uint("threads", 4, "number of demo worker threads (1-8)")
	interval := flag.Duration("redraw", 500*time.Millisecond, "status redraw interval")
	flag.Parse()

	if *threads == 0 || *threads > uint(kernel.MaxSlots) {
		fmt.Fprintf(os.Stderr, "cokernelmon: -threads must be in [1,%d]\n", kernel.MaxSlots)
		os.Exit(1)
	}

	mon, err := newMonitor(uint8(*threads))
	if err != nil {
		fmt.Fprintf(os.Stderr, "cokernelmon: %v\n", err)
		os.Exit(1)
	}
	mon.boot()
	defer mon.k.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := mon.run(ctx, *interval); err != nil && err != errQuit {
		fmt.Fprintf(os.Stderr, "cokernelmon: %v\n", err)
		os.Exit(1)
	}
}

var errQuit = fmt.Errorf("quit requested")

// monitor holds the demo kernel plus the scrollback and per-slot labels a
// real firmware's debug console would get from symbol names; here they're
// just descriptive strings assigned at startup.
type monitor struct {
	k      *kernel.Kernel
	labels [kernel.MaxSlots]string

	mu     sync.Mutex
	output []string
	ticks  map[uint8]uint32 // work counter per worker slot, demo only
}

func newMonitor(threads uint8) (*monitor, error) {
	cfg, err := kernel.NewConfig(
		kernel.WithThreads(threads),
		kernel.WithTickInterval(uint32(time.Millisecond)),
	)
	if err != nil {
		return nil, fmt.Errorf("building kernel config: %w", err)
	}

	m := &monitor{ticks: make(map[uint8]uint32)}
	k, err := kernel.New(cfg, m.onOverflow, m.onAssert)
	if err != nil {
		return nil, fmt.Errorf("constructing kernel: %w", err)
	}
	m.k = k
	for i := uint8(0); i < threads; i++ {
		m.labels[i] = fmt.Sprintf("worker-%d", i)
	}
	return m, nil
}

func (m *monitor) onOverflow(id uint8) {
	m.log(fmt.Sprintf("** STACK OVERFLOW: slot %d canary mismatch **", id))
}

func (m *monitor) onAssert(expr, file string, line int) {
	m.log(fmt.Sprintf("** ASSERT FAILED: %s (%s:%d) **", expr, file, line))
}

func (m *monitor) log(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output = append(m.output, line)
	if len(m.output) > 20 {
		m.output = m.output[len(m.output)-20:]
	}
}

// boot starts slot 0 as a worker and creates the remaining demo threads.
// Each worker just counts and sleeps — the point of cokernelmon is to
// watch the scheduler and lifecycle operations, not the work itself.
func (m *monitor) boot() {
	for i := uint8(1); i < m.slotCount(); i++ {
		m.k.Create(i, m.worker, false, nil)
	}
	m.k.Boot(m.worker, nil)
	m.k.StartTicker()
}

func (m *monitor) slotCount() uint8 {
	for i := uint8(0); i < kernel.MaxSlots; i++ {
		if m.labels[i] == "" {
			return i
		}
	}
	return kernel.MaxSlots
}

func (m *monitor) worker(k *kernel.Kernel, id uint8, arg any) {
	for {
		m.mu.Lock()
		m.ticks[id]++
		m.mu.Unlock()
		k.Sleep(200 + uint16(id)*37)
	}
}

func (m *monitor) run(ctx context.Context, redraw time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	lines := make(chan string)

	g.Go(func() error { return readLines(ctx, lines) })
	g.Go(func() error { return m.redrawLoop(ctx, redraw) })
	g.Go(func() error { return m.dispatchLoop(ctx, lines) })

	return g.Wait()
}

// readLines sets stdin to raw mode and assembles it into newline-terminated
// commands, translating CR to LF and DEL to a one-character erase exactly
// as the teacher's terminal_host.go does for the emulated machine's serial
// console.
func readLines(ctx context.Context, lines chan<- string) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return scanLines(ctx, lines)
	}

	old, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	defer term.Restore(fd, old)

	if err := syscall.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("setting stdin nonblocking: %w", err)
	}
	defer syscall.SetNonblock(fd, false)

	buf := make([]byte, 1)
	var line []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := syscall.Read(fd, buf)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}

		b := buf[0]
		if b == '\r' {
			b = '\n'
		}
		if b == 0x7f { // DEL -> backspace
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Fprint(os.Stdout, "\b \b")
			}
			continue
		}
		if b == '\n' {
			fmt.Fprint(os.Stdout, "\r\n")
			cmd := string(line)
			line = nil
			select {
			case lines <- cmd:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		line = append(line, b)
		os.Stdout.Write([]byte{b})
	}
}

// scanLines is the non-interactive fallback (stdin is a pipe or file, as
// in scripted use) using bufio instead of raw-mode byte reads.
func scanLines(ctx context.Context, lines chan<- string) error {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}

func (m *monitor) redrawLoop(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			m.draw()
		}
	}
}

func (m *monitor) draw() {
	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Fprint(os.Stdout, "\033[2J\033[H") // clear screen, home cursor
	fmt.Fprintf(os.Stdout, "cokernelmon  uptime=%dms\r\n\r\n", m.k.Millis())
	fmt.Fprintf(os.Stdout, "%-3s %-10s %-8s %-10s %-9s %s\r\n", "ID", "LABEL", "ENABLED", "SUSPENDED", "SLEEPING", "TICKS")
	for i := uint8(0); i < m.slotCount(); i++ {
		fmt.Fprintf(os.Stdout, "%-3d %-10s %-8v %-10v %-9v %d\r\n",
			i, m.labels[i], m.k.Enabled(i), m.k.Suspended(i), m.k.Sleeping(i), m.ticks[i])
	}
	fmt.Fprint(os.Stdout, "\r\n> ")
	for _, line := range m.output {
		fmt.Fprintf(os.Stdout, "%s\r\n", line)
	}
}

func (m *monitor) dispatchLoop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-lines:
			if m.dispatch(strings.TrimSpace(line)) {
				return errQuit
			}
		}
	}
}

// dispatch executes a single command line, mirroring the teacher's
// ExecuteCommand switch over an abbreviated command name. Returns true
// when the monitor should exit.
func (m *monitor) dispatch(input string) bool {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "x", "quit":
		return true
	case "?", "help":
		m.log("commands: list, disable <id>, suspend <id>, resume <id>, canary <id>, help, quit")
	case "l", "list":
		// picked up on the next redraw tick; nothing to log
	case "d", "disable":
		m.withOtherSlotArg(args, m.k.Disable)
	case "s", "suspend":
		m.withOtherSlotArg(args, m.k.Suspend)
	case "r", "resume":
		m.withSlotArg(args, m.k.Resume)
	case "c", "canary":
		m.withSlotArg(args, func(id uint8) { m.k.PokeCanary(id, 0x00) })
	default:
		m.log(fmt.Sprintf("unknown command: %s", name))
	}
	return false
}

func (m *monitor) withSlotArg(args []string, f func(uint8)) {
	id, ok := m.parseSlotArg(args)
	if !ok {
		return
	}
	f(id)
}

// withOtherSlotArg is for Disable/Suspend, whose self-targeted path (id
// equal to whichever thread happens to be running right now) assumes the
// call comes from that thread's own goroutine — true for every caller
// inside the kernel's own API surface, but not for cokernelmon, which
// calls in from outside as an external probe. Refuse rather than risk
// entering the no-save scheduler path on the wrong goroutine.
func (m *monitor) withOtherSlotArg(args []string, f func(uint8)) {
	id, ok := m.parseSlotArg(args)
	if !ok {
		return
	}
	if id == m.k.CurrentThread() {
		m.log("refusing: that slot is currently running; a thread can only disable/suspend itself")
		return
	}
	f(id)
}

func (m *monitor) parseSlotArg(args []string) (uint8, bool) {
	if len(args) != 1 {
		m.log("expected one slot id argument")
		return 0, false
	}
	id, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil || id >= uint64(m.slotCount()) {
		m.log(fmt.Sprintf("invalid slot id: %s", args[0]))
		return 0, false
	}
	return uint8(id), true
}
