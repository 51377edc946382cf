package emulator

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kapitanov/chip8core/internal/vm"
)

const (
	FrameRate                   = 60
	DefaultInstructionsPerFrame = 700 / FrameRate
)

var ErrInvalidConfig = errors.New("invalid config")

// Host is the platform the emulator renders to and reads keys from.
type Host interface {
	ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error
	Draw(screen vm.Screen) error
	WaitForNextFrame() error
}

type Config struct {
	InstructionsPerFrame int
	KeyWait              KeyWaitPolicy
}

func DefaultConfig() Config {
	return Config{
		InstructionsPerFrame: DefaultInstructionsPerFrame,
		KeyWait:              KeyWaitOnRelease,
	}
}

func (c Config) validate() error {
	if c.InstructionsPerFrame <= 0 {
		return fmt.Errorf("%w: instructions per frame must be positive, got %d", ErrInvalidConfig, c.InstructionsPerFrame)
	}

	switch c.KeyWait {
	case KeyWaitOnPress, KeyWaitOnRelease:
	default:
		return fmt.Errorf("%w: %w: %v", ErrInvalidConfig, ErrUnknownKeyWaitPolicy, c.KeyWait)
	}

	return nil
}

// Emulator drives a vm.VM at a fixed frame cadence: every frame it polls
// input, runs a batch of instructions, decrements the timers once and
// redraws when the display changed.
type Emulator struct {
	machine *vm.VM
	host    Host
	cfg     Config
	rom     []byte
}

// New creates an emulator with rom loaded into a fresh machine.
func New(host Host, rom []byte, cfg Config, opts ...vm.Option) (*Emulator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Emulator{
		machine: vm.New(opts...),
		host:    host,
		cfg:     cfg,
	}

	if err := e.Load(rom, vm.LoadReset); err != nil {
		return nil, err
	}

	return e, nil
}

// Machine returns the emulated machine.
func (e *Emulator) Machine() *vm.VM {
	return e.machine
}

// Load replaces the running program. Reboot reloads the last program loaded.
func (e *Emulator) Load(rom []byte, mode vm.LoadMode) error {
	if err := e.machine.Load(rom, mode); err != nil {
		return fmt.Errorf("unable to load program: %w", err)
	}

	e.rom = rom
	slog.Info("load program", "n", len(rom), "reset", mode == vm.LoadReset)
	return nil
}

// Reboot resets the machine and reloads the program.
func (e *Emulator) Reboot() error {
	slog.Info("reboot")
	return e.Load(e.rom, vm.LoadReset)
}

// Run executes frames until the host or the guest program returns an error.
// Guest faults are returned as *vm.ExecError.
func (e *Emulator) Run() error {
	for {
		if err := e.Frame(); err != nil {
			return err
		}

		if err := e.host.WaitForNextFrame(); err != nil {
			return err
		}
	}
}

// Frame runs a single frame.
func (e *Emulator) Frame() error {
	if err := e.host.ReadInput(e.keyDown, e.keyUp); err != nil {
		return err
	}

	for range e.cfg.InstructionsPerFrame {
		if err := e.machine.Step(); err != nil {
			return err
		}
	}

	e.machine.DecrementTimers()

	if e.machine.Dirty() {
		if err := e.host.Draw(e.machine.Screen()); err != nil {
			return err
		}
		e.machine.ClearDirty()
	}

	return nil
}

// WaitForReboot keeps the host responsive after the guest program stopped,
// until the host returns an error (quit or reboot).
func (e *Emulator) WaitForReboot() error {
	for {
		if err := e.host.WaitForNextFrame(); err != nil {
			return err
		}

		if err := e.host.ReadInput(func(vm.Key) {}, func(vm.Key) {}); err != nil {
			return err
		}
	}
}

func (e *Emulator) keyDown(key vm.Key) {
	if err := e.machine.SetKey(key, true); err != nil {
		slog.Warn("ignore key", "key", key, "err", err)
		return
	}

	if e.cfg.KeyWait == KeyWaitOnPress {
		e.completeKeyWait(key)
	}
}

func (e *Emulator) keyUp(key vm.Key) {
	wasDown, err := e.machine.IsKeyDown(key)
	if err != nil {
		slog.Warn("ignore key", "key", key, "err", err)
		return
	}

	if e.cfg.KeyWait == KeyWaitOnRelease && wasDown {
		e.completeKeyWait(key)
	}

	if err := e.machine.SetKey(key, false); err != nil {
		slog.Warn("ignore key", "key", key, "err", err)
	}
}

func (e *Emulator) completeKeyWait(key vm.Key) {
	if e.machine.State() != vm.WaitingForKey {
		return
	}

	if err := e.machine.CompleteKeyWait(key); err != nil {
		slog.Warn("unable to complete key wait", "key", key, "err", err)
		return
	}

	slog.Debug("key wait completed", "key", key, "register", e.machine.WaitingRegister())
}
