package vm

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisassemble(t *testing.T) {
	tests := []struct {
		opcode uint16
		want   string
	}{
		{0x00E0, "cls"},
		{0x00EE, "ret"},
		{0x1ABC, "jp 0xabc"},
		{0x2ABC, "call 0xabc"},
		{0x3A12, "se va, 0x12"},
		{0x4A12, "sne va, 0x12"},
		{0x5AB0, "se va, vb"},
		{0x6A12, "ld va, 0x12"},
		{0x7A12, "add va, 0x12"},
		{0x8AB0, "ld va, vb"},
		{0x8AB1, "or va, vb"},
		{0x8AB2, "and va, vb"},
		{0x8AB3, "xor va, vb"},
		{0x8AB4, "add va, vb"},
		{0x8AB5, "sub va, vb"},
		{0x8AB6, "shr va"},
		{0x8AB7, "subn va, vb"},
		{0x8ABE, "shl va"},
		{0x9AB0, "sne va, vb"},
		{0xAABC, "ld i, 0xabc"},
		{0xBABC, "ld i, 0xabc + v0"},
		{0xCA12, "rnd va, 0x12"},
		{0xDAB5, "drw va, vb, 5"},
		{0xEA9E, "skp va"},
		{0xEAA1, "sknp va"},
		{0xFA07, "ld va, dt"},
		{0xFA0A, "ld va, k"},
		{0xFA15, "ld dt, va"},
		{0xFA18, "ld st, va"},
		{0xFA1E, "add i, va"},
		{0xFA29, "ld f, va"},
		{0xFA33, "ld b, va"},
		{0xFA55, "ld [i], va"},
		{0xFA65, "ld va, [i]"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Disassemble(tt.opcode))
		})
	}
}

func TestUnknownOpcode(t *testing.T) {
	unknown := []uint16{
		0x0000, 0x0123, 0x00E1, 0x00FF,
		0x5AB1, 0x9AB1,
		0x8AB8, 0x8ABF,
		0xEA9F, 0xEAA0,
		0xFA00, 0xFA56, 0xFAFF,
	}

	for _, opcode := range unknown {
		t.Run(Disassemble(opcode), func(t *testing.T) {
			assert := assert.New(t)

			vm := newTestVM(t)
			before := *vm

			err := exec(vm, opcode)
			assert.ErrorIs(err, ErrUnknownOpcode)

			var execErr *ExecError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(opcode, execErr.Opcode)
			assert.Equal(ProgramStart, execErr.PC)
			assert.Equal(before.registers, vm.registers)
			assert.Equal(ProgramStart, vm.PC())
		})
	}
}

func TestCls(t *testing.T) {
	assert := assert.New(t)

	vm := newTestVM(t)
	vm.gfx[0] = 1
	vm.gfx[len(vm.gfx)-1] = 1

	assert.NoError(exec(vm, 0x00E0))
	assert.Equal(Screen{}, vm.Screen())
	assert.Equal(ProgramStart+2, vm.PC())
}

func TestCallRet(t *testing.T) {
	assert := assert.New(t)

	vm := newTestVM(t, 0x2300)
	vm.memory[0x300] = 0x00
	vm.memory[0x301] = 0xEE

	assert.NoError(vm.Step())
	assert.Equal(uint16(0x300), vm.PC())
	assert.Equal(1, vm.StackDepth())
	assert.Equal(ProgramStart, vm.stack[0])

	assert.NoError(vm.Step())
	assert.Equal(ProgramStart+2, vm.PC())
	assert.Equal(0, vm.StackDepth())
}

func TestCall_StackOverflow(t *testing.T) {
	assert := assert.New(t)

	// call self until the stack is full
	vm := newTestVM(t, 0x2200)
	for range StackSize {
		assert.NoError(vm.Step())
	}
	assert.Equal(StackSize, vm.StackDepth())

	err := vm.Step()
	assert.ErrorIs(err, ErrStackOverflow)
	assert.Equal(StackSize, vm.StackDepth())
	assert.Equal(ProgramStart, vm.PC())
}

func TestRet_StackUnderflow(t *testing.T) {
	assert := assert.New(t)

	vm := newTestVM(t, 0x00EE)
	err := vm.Step()
	assert.ErrorIs(err, ErrStackUnderflow)
	assert.Equal(0, vm.StackDepth())
	assert.Equal(ProgramStart, vm.PC())
}

func TestJump(t *testing.T) {
	vm := newTestVM(t, 0x1ABC)
	assert.NoError(t, vm.Step())
	assert.Equal(t, uint16(0xABC), vm.PC())
}

func TestSkips(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		vx, vy uint8
		skip   bool
	}{
		{"se imm match", 0x3142, 0x42, 0, true},
		{"se imm mismatch", 0x3142, 0x41, 0, false},
		{"sne imm match", 0x4142, 0x42, 0, false},
		{"sne imm mismatch", 0x4142, 0x41, 0, true},
		{"se reg match", 0x5120, 7, 7, true},
		{"se reg mismatch", 0x5120, 7, 8, false},
		{"sne reg match", 0x9120, 7, 7, false},
		{"sne reg mismatch", 0x9120, 7, 8, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			vm.registers[1] = tt.vx
			vm.registers[2] = tt.vy

			assert.NoError(t, exec(vm, tt.opcode))

			want := ProgramStart + InstructionSize
			if tt.skip {
				want += InstructionSize
			}
			assert.Equal(t, want, vm.PC())
		})
	}
}

func TestKeySkips(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		down   bool
		skip   bool
	}{
		{"skp down", 0xE59E, true, true},
		{"skp up", 0xE59E, false, false},
		{"sknp down", 0xE5A1, true, false},
		{"sknp up", 0xE5A1, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			vm.registers[5] = uint8(KeyC)
			require.NoError(t, vm.SetKey(KeyC, tt.down))

			assert.NoError(t, exec(vm, tt.opcode))

			want := ProgramStart + InstructionSize
			if tt.skip {
				want += InstructionSize
			}
			assert.Equal(t, want, vm.PC())
		})
	}
}

func TestLoadAddImmediate(t *testing.T) {
	assert := assert.New(t)

	vm := newTestVM(t, 0x6AFE, 0x7A03, 0x7A01)
	vm.registers[0x0F] = 0x55
	for range 3 {
		assert.NoError(vm.Step())
	}

	assert.Equal(uint8(0x02), vm.Register(0x0A))
	assert.Equal(uint8(0x55), vm.Register(0x0F), "7XNN leaves VF alone")
}

func TestBitwise(t *testing.T) {
	tests := []struct {
		opcode uint16
		want   uint8
	}{
		{0x8120, 0b0101_0000},
		{0x8121, 0b1111_1100},
		{0x8122, 0b0000_0000},
		{0x8123, 0b1111_1100},
	}

	for _, tt := range tests {
		t.Run(Disassemble(tt.opcode), func(t *testing.T) {
			vm := newTestVM(t)
			vm.registers[1] = 0b1010_1100
			vm.registers[2] = 0b0101_0000

			assert.NoError(t, exec(vm, tt.opcode))
			assert.Equal(t, tt.want, vm.Register(1))
			assert.Equal(t, ProgramStart+2, vm.PC())
		})
	}
}

func TestAddWithCarry(t *testing.T) {
	vm := newTestVM(t)

	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			vm.pc = ProgramStart
			vm.registers[1] = uint8(a)
			vm.registers[2] = uint8(b)

			require.NoError(t, exec(vm, 0x8124))

			carry := uint8(0)
			if a+b > 255 {
				carry = 1
			}
			if vm.registers[1] != uint8((a+b)%256) || vm.registers[0x0F] != carry {
				t.Fatalf("add %d+%d: got v1=%d vf=%d", a, b, vm.registers[1], vm.registers[0x0F])
			}
		}
	}
}

func TestSubtract(t *testing.T) {
	vm := newTestVM(t)

	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			vm.pc = ProgramStart
			vm.registers[1] = uint8(a)
			vm.registers[2] = uint8(b)
			require.NoError(t, exec(vm, 0x8125))

			flag := uint8(0)
			if a >= b {
				flag = 1
			}
			if vm.registers[1] != uint8(a-b) || vm.registers[0x0F] != flag {
				t.Fatalf("sub %d-%d: got v1=%d vf=%d", a, b, vm.registers[1], vm.registers[0x0F])
			}

			vm.pc = ProgramStart
			vm.registers[1] = uint8(a)
			vm.registers[2] = uint8(b)
			require.NoError(t, exec(vm, 0x8127))

			flag = 0
			if b >= a {
				flag = 1
			}
			if vm.registers[1] != uint8(b-a) || vm.registers[0x0F] != flag {
				t.Fatalf("subn %d-%d: got v1=%d vf=%d", b, a, vm.registers[1], vm.registers[0x0F])
			}
		}
	}
}

func TestShift(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		x      uint8
		want   uint8
		flag   uint8
	}{
		{"shr odd", 0x8126, 0b1000_0011, 0b0100_0001, 1},
		{"shr even", 0x8126, 0b1000_0010, 0b0100_0001, 0},
		{"shl high", 0x812E, 0b1000_0011, 0b0000_0110, 1},
		{"shl low", 0x812E, 0b0100_0011, 0b1000_0110, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			vm.registers[1] = tt.x
			vm.registers[2] = 0xFF

			assert.NoError(t, exec(vm, tt.opcode))
			assert.Equal(t, tt.want, vm.Register(1))
			assert.Equal(t, tt.flag, vm.Register(0x0F))
			assert.Equal(t, uint8(0xFF), vm.Register(2), "vY is not touched")
		})
	}
}

func TestFlagRegisterAsOperand(t *testing.T) {
	assert := assert.New(t)

	vm := newTestVM(t)
	vm.registers[0x0F] = 0xFF
	vm.registers[1] = 0x03

	// VF = VF + V1 = 0x02 with carry; the carry flag is written after the sum
	assert.NoError(exec(vm, 0x8F14))
	assert.Equal(uint8(1), vm.Register(0x0F))
}

func TestIndex(t *testing.T) {
	assert := assert.New(t)

	vm := newTestVM(t, 0xA123, 0x6010, 0xB100, 0x6120, 0xF11E)

	assert.NoError(vm.Step())
	assert.Equal(uint16(0x123), vm.Index())

	assert.NoError(vm.Step())
	assert.NoError(vm.Step())
	assert.Equal(uint16(0x110), vm.Index())
	assert.Equal(ProgramStart+6, vm.PC())

	vm.registers[0x0F] = 0x77
	assert.NoError(vm.Step())
	assert.NoError(vm.Step())
	assert.Equal(uint16(0x130), vm.Index())
	assert.Equal(uint8(0x77), vm.Register(0x0F), "FX1E leaves VF alone")
}

func TestRandom(t *testing.T) {
	assert := assert.New(t)

	vm := newTestVM(t, 0xC30F, 0xC400)
	expected := rand.New(rand.NewPCG(1, 2))

	assert.NoError(vm.Step())
	assert.Equal(uint8(expected.Uint32())&0x0F, vm.Register(3))

	vm.registers[4] = 0xAA
	assert.NoError(vm.Step())
	assert.Equal(uint8(0), vm.Register(4))
}

func TestTimerRegisters(t *testing.T) {
	assert := assert.New(t)

	vm := newTestVM(t, 0x6A2A, 0xFA15, 0xFA18, 0xFB07)
	for range 4 {
		assert.NoError(vm.Step())
	}

	assert.Equal(uint8(0x2A), vm.DelayTimer())
	assert.Equal(uint8(0x2A), vm.SoundTimer())
	assert.Equal(uint8(0x2A), vm.Register(0x0B))
}

func TestFont(t *testing.T) {
	for digit := uint8(0); digit < 16; digit++ {
		vm := newTestVM(t)
		vm.registers[2] = digit

		assert.NoError(t, exec(vm, 0xF229))
		assert.Equal(t, uint16(digit)*5, vm.Index())
	}

	vm := newTestVM(t)
	vm.registers[2] = 0x3A
	assert.NoError(t, exec(vm, 0xF229))
	assert.Equal(t, uint16(0x0A)*5, vm.Index(), "only the low nibble selects a glyph")
}

func TestBCD(t *testing.T) {
	vm := newTestVM(t)
	vm.index = 0x300

	for v := 0; v < 256; v++ {
		vm.pc = ProgramStart
		vm.registers[6] = uint8(v)
		require.NoError(t, exec(vm, 0xF633))

		want := []uint8{uint8(v / 100), uint8((v / 10) % 10), uint8(v % 10)}
		if got := vm.memory[0x300:0x303]; !assert.Equal(t, want, got, "bcd %d", v) {
			return
		}
	}
	assert.Equal(t, uint16(0x300), vm.Index())
}

func TestBCD_OutOfRange(t *testing.T) {
	vm := newTestVM(t)
	vm.index = 0xFFE

	err := exec(vm, 0xF633)
	assert.ErrorIs(t, err, ErrMemoryAccessOutOfRange)
	assert.Equal(t, ProgramStart, vm.PC())
	assert.Equal(t, uint8(0), vm.memory[0xFFE])
}

func TestStoreLoadRoundTrip(t *testing.T) {
	for x := uint16(0); x < RegisterCount; x++ {
		t.Run(Disassemble(0xF055|x<<8), func(t *testing.T) {
			assert := assert.New(t)

			vm := newTestVM(t)
			vm.index = 0x400
			var original [RegisterCount]uint8
			for i := range original {
				original[i] = uint8(0x10 + i)
			}
			vm.registers = original

			assert.NoError(exec(vm, 0xF055|x<<8))
			assert.Equal(original[:x+1], vm.memory[0x400:0x400+x+1])
			assert.Equal(uint8(0), vm.memory[0x400+x+1], "only v0..vX are stored")
			assert.Equal(uint16(0x400), vm.Index())

			vm.registers = [RegisterCount]uint8{}
			assert.NoError(exec(vm, 0xF065|x<<8))
			assert.Equal(original[:x+1], vm.registers[:x+1])
			for i := x + 1; i < RegisterCount; i++ {
				assert.Equal(uint8(0), vm.registers[i], "v%x loaded past vX", i)
			}
			assert.Equal(uint16(0x400), vm.Index())
		})
	}
}

func TestStoreLoad_OutOfRange(t *testing.T) {
	assert := assert.New(t)

	vm := newTestVM(t)
	vm.index = 0xFF8
	vm.registers[0] = 0x99

	// 8 registers fit exactly
	assert.NoError(exec(vm, 0xF755))
	assert.Equal(uint8(0x99), vm.memory[0xFF8])

	vm.registers[0] = 0x11
	err := exec(vm, 0xF855)
	assert.ErrorIs(err, ErrMemoryAccessOutOfRange)
	assert.Equal(uint8(0x99), vm.memory[0xFF8], "faulting store writes nothing")

	err = exec(vm, 0xF865)
	assert.ErrorIs(err, ErrMemoryAccessOutOfRange)
	assert.Equal(uint8(0x11), vm.Register(0), "faulting load reads nothing")
}

func TestDraw_Collision(t *testing.T) {
	assert := assert.New(t)

	vm := newTestVM(t, 0xA000, 0x6A08, 0x6B04, 0xDAB5, 0xDAB5)
	for range 4 {
		assert.NoError(vm.Step())
	}
	assert.Equal(uint8(0), vm.Register(0x0F))
	screen := vm.Screen()
	assert.True(screen.Pixel(8, 4))

	assert.NoError(vm.Step())
	assert.Equal(uint8(1), vm.Register(0x0F))
	assert.Equal(Screen{}, vm.Screen())
}

func TestDraw_ClearsFlagFirst(t *testing.T) {
	vm := newTestVM(t)
	vm.registers[0x0F] = 1
	vm.index = 0

	assert.NoError(t, exec(vm, 0xD011))
	assert.Equal(t, uint8(0), vm.Register(0x0F))
}

func TestDraw_WrapVsClip(t *testing.T) {
	tests := []struct {
		name   string
		x, y   uint8
		pixels [][2]int
		absent [][2]int
	}{
		{
			name:   "anchor off screen wraps",
			x:      70,
			y:      5,
			pixels: [][2]int{{6, 5}, {13, 5}},
			absent: [][2]int{{5, 5}, {14, 5}},
		},
		{
			name:   "anchor on screen clips",
			x:      60,
			y:      5,
			pixels: [][2]int{{60, 5}, {63, 5}},
			absent: [][2]int{{0, 5}, {1, 5}, {2, 5}, {3, 5}},
		},
		{
			name:   "row anchor off screen wraps",
			x:      0,
			y:      33,
			pixels: [][2]int{{0, 1}, {7, 1}},
			absent: [][2]int{{0, 0}, {0, 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			vm.index = 0x300
			vm.memory[0x300] = 0xFF
			vm.registers[1] = tt.x
			vm.registers[2] = tt.y

			assert.NoError(t, exec(vm, 0xD121))

			screen := vm.Screen()
			for _, p := range tt.pixels {
				assert.True(t, screen.Pixel(p[0], p[1]), "pixel %v", p)
			}
			for _, p := range tt.absent {
				assert.False(t, screen.Pixel(p[0], p[1]), "pixel %v", p)
			}
		})
	}
}

func TestDraw_ClipsBottomRows(t *testing.T) {
	assert := assert.New(t)

	vm := newTestVM(t)
	vm.index = 0 // "0" glyph, five rows
	vm.registers[1] = 0
	vm.registers[2] = 30

	assert.NoError(exec(vm, 0xD125))

	screen := vm.Screen()
	assert.True(screen.Pixel(0, 30))
	assert.True(screen.Pixel(0, 31))
	for y := 0; y < 3; y++ {
		for x := 0; x < 8; x++ {
			assert.False(screen.Pixel(x, y), "pixel (%d,%d) wrapped", x, y)
		}
	}
}

func TestDraw_OutOfRange(t *testing.T) {
	assert := assert.New(t)

	vm := newTestVM(t)
	vm.index = 0xFFD
	vm.registers[0x0F] = 0x42

	err := exec(vm, 0xD004)
	assert.ErrorIs(err, ErrMemoryAccessOutOfRange)
	assert.Equal(uint8(0x42), vm.Register(0x0F))
	assert.Equal(Screen{}, vm.Screen())

	assert.NoError(exec(vm, 0xD003))
}

func TestWaitKey(t *testing.T) {
	assert := assert.New(t)

	vm := newTestVM(t)
	for k := Key0; k <= KeyF; k++ {
		assert.NoError(vm.SetKey(k, true))
	}

	assert.NoError(exec(vm, 0xF40A))
	assert.Equal(WaitingForKey, vm.State())
	assert.Equal(uint8(4), vm.WaitingRegister())
	assert.Equal(ProgramStart, vm.PC())
	assert.Equal([KeyCount]bool{}, vm.keypad)
}
