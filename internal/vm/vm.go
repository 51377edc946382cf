package vm

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
)

const (
	MemorySize    = 4096
	StackSize     = 16
	RegisterCount = 16
	ScreenWidth   = 64
	ScreenHeight  = 32
	KeyCount      = 16

	ProgramStart    = uint16(0x200)
	MaxProgramSize  = MemorySize - int(ProgramStart)
	InstructionSize = 2

	flagRegister = 0x0F
)

// State is the execution state of the interpreter.
type State uint8

const (
	// Running executes one instruction per Step.
	Running State = iota
	// WaitingForKey blocks Step until CompleteKeyWait is called.
	WaitingForKey
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case WaitingForKey:
		return "waiting-for-key"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// LoadMode selects what Load does with the state left by a previous program.
type LoadMode uint8

const (
	// LoadKeepState copies the program over memory and leaves registers,
	// stack, timers, keypad and display as they are. Bytes past the end of
	// the program are not cleared.
	LoadKeepState LoadMode = iota
	// LoadReset resets the machine before copying the program.
	LoadReset
)

// VM is a CHIP-8 interpreter. It is not safe for concurrent use.
type VM struct {
	memory    [MemorySize]uint8    // Memory (4k)
	registers [RegisterCount]uint8 // V registers (V0-VF)

	stack [StackSize]uint16 // Stack
	sp    uint16            // Stack pointer

	pc    uint16 // Program counter
	index uint16 // Index register

	delayTimer uint8 // Delay timer
	soundTimer uint8 // Sound timer

	gfx      Screen         // Graphics buffer
	keypad   [KeyCount]bool // Keypad
	drawFlag bool           // Indicates a draw has occurred

	state   State
	waitReg uint8 // Register targeted by a pending FX0A

	rng *rand.Rand
}

// Option configures a VM.
type Option func(*VM)

// WithRand sets the random source used by CXNN.
func WithRand(src rand.Source) Option {
	return func(vm *VM) {
		vm.rng = rand.New(src)
	}
}

// New returns a machine with the font loaded and the program counter at ProgramStart.
func New(opts ...Option) *VM {
	vm := &VM{}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.rng == nil {
		vm.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	vm.Reset()
	return vm
}

// Reset puts the machine back into its freshly constructed state.
func (vm *VM) Reset() {
	vm.memory = [MemorySize]uint8{}
	copy(vm.memory[FontStart:], chip8Font)

	vm.registers = [RegisterCount]uint8{}
	vm.stack = [StackSize]uint16{}
	vm.sp = 0
	vm.pc = ProgramStart
	vm.index = 0

	vm.delayTimer = 0
	vm.soundTimer = 0

	vm.gfx = Screen{}
	vm.drawFlag = true
	vm.keypad = [KeyCount]bool{}

	vm.state = Running
	vm.waitReg = 0
}

// Load copies program into memory at ProgramStart.
func (vm *VM) Load(program []byte, mode LoadMode) error {
	if len(program) > MaxProgramSize {
		return fmt.Errorf("%w: %d bytes, at most %d fit", ErrProgramTooLarge, len(program), MaxProgramSize)
	}

	if mode == LoadReset {
		vm.Reset()
	}

	slog.Debug("load program", "at", fmt.Sprintf("0x%04x", ProgramStart), "n", len(program), "reset", mode == LoadReset)
	copy(vm.memory[ProgramStart:], program)
	return nil
}

// Step executes exactly one instruction. While the machine waits for a key
// it does nothing.
func (vm *VM) Step() error {
	if vm.state == WaitingForKey {
		return nil
	}

	opcode, err := vm.fetchOpcode()
	if err != nil {
		return &ExecError{PC: vm.pc, Err: err}
	}

	if err := vm.executeOpcode(opcode); err != nil {
		return &ExecError{PC: vm.pc, Opcode: opcode, Err: err}
	}

	return nil
}

// DecrementTimers counts both timers down by one, stopping at zero.
func (vm *VM) DecrementTimers() {
	if vm.delayTimer > 0 {
		vm.delayTimer--
	}

	if vm.soundTimer > 0 {
		vm.soundTimer--
	}
}

func (vm *VM) fetchOpcode() (uint16, error) {
	if int(vm.pc)+1 >= MemorySize {
		return 0, fmt.Errorf("%w: fetch at 0x%04x", ErrMemoryAccessOutOfRange, vm.pc)
	}

	hi := vm.memory[vm.pc]
	lo := vm.memory[vm.pc+1]

	opcode := uint16(hi)<<8 | uint16(lo) // Op code is two bytes
	return opcode, nil
}

// checkRange reports whether n bytes starting at addr are addressable.
func checkRange(addr uint16, n int) error {
	if n < 0 || int(addr)+n > MemorySize {
		return fmt.Errorf("%w: 0x%04x+%d", ErrMemoryAccessOutOfRange, addr, n)
	}
	return nil
}

func (vm *VM) PC() uint16 {
	return vm.pc
}

func (vm *VM) Index() uint16 {
	return vm.index
}

func (vm *VM) StackDepth() int {
	return int(vm.sp)
}

func (vm *VM) DelayTimer() uint8 {
	return vm.delayTimer
}

func (vm *VM) SoundTimer() uint8 {
	return vm.soundTimer
}

// SoundActive reports whether the buzzer should sound.
func (vm *VM) SoundActive() bool {
	return vm.soundTimer > 0
}

func (vm *VM) State() State {
	return vm.state
}

// WaitingRegister returns the register a pending FX0A will write to.
func (vm *VM) WaitingRegister() uint8 {
	return vm.waitReg
}

// Register returns the value of register Vn. Only the low nibble of n is used.
func (vm *VM) Register(n uint8) uint8 {
	return vm.registers[n&0x0F]
}

// Memory returns a copy of n bytes starting at addr.
func (vm *VM) Memory(addr uint16, n int) ([]byte, error) {
	if err := checkRange(addr, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, vm.memory[addr:])
	return out, nil
}

// Screen returns a copy of the display buffer.
func (vm *VM) Screen() Screen {
	return vm.gfx
}

// Dirty reports whether the display changed since the last ClearDirty.
func (vm *VM) Dirty() bool {
	return vm.drawFlag
}

func (vm *VM) ClearDirty() {
	vm.drawFlag = false
}
