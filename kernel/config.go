// config.go - compile-time-shaped kernel configuration

// Package kernel implements a host simulator of a minimal cooperative
// multitasking kernel for small, single-core microcontrollers: up to
// eight statically allocated thread slots sharing the CPU by explicit
// yield, timed sleep against a millisecond tick, stack-canary overflow
// detection, and suspend/resume/disable control.
package kernel

import "fmt"

// MaxSlots is the hard upper bound on thread slots a Kernel can hold.
const MaxSlots = 8

// MinStackSize is the smallest stack region a slot may be configured with.
const MinStackSize = 32

// InitialStackUsage is the number of bytes a freshly created thread's
// bootstrap frame occupies before its first instruction runs: 2
// entry-point, 2 arg, 1 thread-id, 2 bootstrap-return, 18 callee-saved
// registers, per the AVR ABI this kernel's contract is modeled on.
const InitialStackUsage = 25

// DefaultCanary is the sentinel byte written to the low end of every
// slot's stack region when stack-canary checking is enabled.
const DefaultCanary byte = 0xC5

// Config describes the compile-time-shaped parameters of a Kernel: the
// number of slots, each slot's stack size, whether stack-canary checking
// is enabled, and the tick period driving Uptime/sleep bookkeeping.
//
// Real AVR firmware fixes these at compile time via constants; this host
// simulator accepts them as a value so tests can build many independently
// configured kernels, but every field is meant to be set once at
// construction and never mutated afterward.
type Config struct {
	Threads      uint8
	StackSizes   [MaxSlots]uint16
	UseCanary    bool
	Canary       byte
	TickInterval uint32 // simulated tick period, nanoseconds; 0 means 1,000,000 (1ms)
	UseAssert    bool

	// RAMSize is the simulated size, in bytes, of the RAM region the
	// stack map partitions top-down from RAMEND. The sum of configured
	// stack sizes must be strictly less than RAMSize.
	RAMSize uint32
}

// Option configures a Config via NewConfig.
type Option func(*Config)

// WithThreads sets the number of usable slots (1..MaxSlots).
func WithThreads(n uint8) Option {
	return func(c *Config) { c.Threads = n }
}

// WithStackSize sets slot i's stack region size in bytes.
func WithStackSize(i uint8, size uint16) Option {
	return func(c *Config) {
		if int(i) < len(c.StackSizes) {
			c.StackSizes[i] = size
		}
	}
}

// WithCanary enables stack-canary checking with the given sentinel byte.
func WithCanary(value byte) Option {
	return func(c *Config) {
		c.UseCanary = true
		c.Canary = value
	}
}

// WithoutCanary disables stack-canary checking.
func WithoutCanary() Option {
	return func(c *Config) { c.UseCanary = false }
}

// WithTickInterval overrides the simulated tick period (nanoseconds).
// Real hardware fixes this via F_CPU and a timer prescaler; the simulator
// exposes it directly so tests can run a kernel's sleep/timer subsystem
// far faster than real time without changing its semantics.
func WithTickInterval(ns uint32) Option {
	return func(c *Config) { c.TickInterval = ns }
}

// WithAssert toggles KERNEL_USE_ASSERT.
func WithAssert(enabled bool) Option {
	return func(c *Config) { c.UseAssert = enabled }
}

// WithRAMSize sets the simulated usable-RAM size the stack map partitions.
func WithRAMSize(size uint32) Option {
	return func(c *Config) { c.RAMSize = size }
}

// NewConfig builds a Config from defaults (8 threads, 128-byte stacks,
// canary enabled with DefaultCanary, 1ms tick, assertions enabled) plus
// the given options, and validates the result.
func NewConfig(opts ...Option) (Config, error) {
	cfg := Config{
		Threads:      MaxSlots,
		UseCanary:    true,
		Canary:       DefaultCanary,
		TickInterval: 1_000_000,
		UseAssert:    true,
		RAMSize:      2048,
	}
	for i := range cfg.StackSizes {
		cfg.StackSizes[i] = 128
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 1_000_000
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Threads == 0 || c.Threads > MaxSlots {
		return fmt.Errorf("kernel: Threads must be in [1,%d], got %d", MaxSlots, c.Threads)
	}
	var total uint32
	for i := uint8(0); i < c.Threads; i++ {
		size := c.StackSizes[i]
		if size < MinStackSize {
			return fmt.Errorf("kernel: slot %d stack size %d below MinStackSize %d", i, size, MinStackSize)
		}
		total += uint32(size)
	}
	if total >= c.RAMSize {
		return fmt.Errorf("kernel: total stack size %d must be strictly less than RAMSize %d", total, c.RAMSize)
	}
	return nil
}
