package vm

import (
	"context"
	"fmt"
	"log/slog"
)

func (vm *VM) executeOpcode(opcode uint16) error {
	instr := decode(opcode)

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug(
			"exec",
			"pc", fmt.Sprintf("0x%04x", vm.pc),
			"opcode", fmt.Sprintf("0x%04x", opcode),
			"instr", instr.Name(opcode),
		)
	}

	return instr.Execute(vm, opcode)
}

// Disassemble returns the mnemonic form of an instruction word.
func Disassemble(opcode uint16) string {
	return decode(opcode).Name(opcode)
}

type instruction struct {
	Name    func(opcode uint16) string
	Execute func(vm *VM, opcode uint16) error
}

func regX(opcode uint16) uint16 {
	return (opcode & 0x0F00) >> 8
}

func regY(opcode uint16) uint16 {
	return (opcode & 0x00F0) >> 4
}

func imm8(opcode uint16) uint8 {
	return uint8(opcode & 0x00FF)
}

func addr12(opcode uint16) uint16 {
	return opcode & 0x0FFF
}

func decode(opcode uint16) instruction {
	switch opcode & 0xF000 {
	case 0x0000:
		switch opcode {
		case 0x00E0:
			return clsInstruction
		case 0x00EE:
			return retInstruction
		}

	case 0x1000:
		return jpInstruction

	case 0x2000:
		return callInstruction

	case 0x3000:
		return seImmInstruction

	case 0x4000:
		return sneImmInstruction

	case 0x5000:
		if opcode&0x000F == 0 {
			return seRegInstruction
		}

	case 0x6000:
		return ldImmInstruction

	case 0x7000:
		return addImmInstruction

	case 0x8000:
		switch opcode & 0x000F {
		case 0x0000:
			return ldRegInstruction
		case 0x0001:
			return orInstruction
		case 0x0002:
			return andInstruction
		case 0x0003:
			return xorInstruction
		case 0x0004:
			return addRegInstruction
		case 0x0005:
			return subInstruction
		case 0x0006:
			return shrInstruction
		case 0x0007:
			return subnInstruction
		case 0x000E:
			return shlInstruction
		}

	case 0x9000:
		if opcode&0x000F == 0 {
			return sneRegInstruction
		}

	case 0xA000:
		return ldIndexInstruction

	case 0xB000:
		return ldIndexOffsetInstruction

	case 0xC000:
		return rndInstruction

	case 0xD000:
		return drwInstruction

	case 0xE000:
		switch opcode & 0x00FF {
		case 0x009E:
			return skpInstruction
		case 0x00A1:
			return sknpInstruction
		}

	case 0xF000:
		switch opcode & 0x00FF {
		case 0x0007:
			return ldDelayInstruction
		case 0x000A:
			return waitKeyInstruction
		case 0x0015:
			return setDelayInstruction
		case 0x0018:
			return setSoundInstruction
		case 0x001E:
			return addIndexInstruction
		case 0x0029:
			return fontInstruction
		case 0x0033:
			return bcdInstruction
		case 0x0055:
			return storeInstruction
		case 0x0065:
			return loadInstruction
		}
	}

	return unknownInstruction
}

func (vm *VM) skipIf(cond bool) {
	if cond {
		vm.pc += 2 * InstructionSize
	} else {
		vm.pc += InstructionSize
	}
}

// setWithFlag stores a result in VX and then the flag in VF, so the flag
// wins when X is F.
func (vm *VM) setWithFlag(vX uint16, result uint8, flag bool) {
	vm.registers[vX] = result
	if flag {
		vm.registers[flagRegister] = 1
	} else {
		vm.registers[flagRegister] = 0
	}
}

func nameX(mnemonic string) func(uint16) string {
	return func(opcode uint16) string {
		return fmt.Sprintf("%s v%x", mnemonic, regX(opcode))
	}
}

func nameXY(mnemonic string) func(uint16) string {
	return func(opcode uint16) string {
		return fmt.Sprintf("%s v%x, v%x", mnemonic, regX(opcode), regY(opcode))
	}
}

func nameXImm(mnemonic string) func(uint16) string {
	return func(opcode uint16) string {
		return fmt.Sprintf("%s v%x, 0x%02x", mnemonic, regX(opcode), imm8(opcode))
	}
}

var (
	// 00E0 cls
	clsInstruction = instruction{
		Name: func(uint16) string { return "cls" },
		Execute: func(vm *VM, opcode uint16) error {
			vm.gfx.clear()
			vm.drawFlag = true
			vm.pc += InstructionSize
			return nil
		},
	}

	// 00EE ret: resume after the matching call
	retInstruction = instruction{
		Name: func(uint16) string { return "ret" },
		Execute: func(vm *VM, opcode uint16) error {
			if vm.sp == 0 {
				return ErrStackUnderflow
			}
			vm.sp--
			vm.pc = vm.stack[vm.sp] + InstructionSize
			return nil
		},
	}

	// 1NNN jp NNN
	jpInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("jp 0x%03x", addr12(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.pc = addr12(opcode)
			return nil
		},
	}

	// 2NNN call NNN
	callInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("call 0x%03x", addr12(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			if int(vm.sp) >= StackSize {
				return ErrStackOverflow
			}
			vm.stack[vm.sp] = vm.pc
			vm.sp++
			vm.pc = addr12(opcode)
			return nil
		},
	}

	// 3XNN se vX, NN
	seImmInstruction = instruction{
		Name: nameXImm("se"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.skipIf(vm.registers[regX(opcode)] == imm8(opcode))
			return nil
		},
	}

	// 4XNN sne vX, NN
	sneImmInstruction = instruction{
		Name: nameXImm("sne"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.skipIf(vm.registers[regX(opcode)] != imm8(opcode))
			return nil
		},
	}

	// 5XY0 se vX, vY
	seRegInstruction = instruction{
		Name: nameXY("se"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.skipIf(vm.registers[regX(opcode)] == vm.registers[regY(opcode)])
			return nil
		},
	}

	// 6XNN ld vX, NN
	ldImmInstruction = instruction{
		Name: nameXImm("ld"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[regX(opcode)] = imm8(opcode)
			vm.pc += InstructionSize
			return nil
		},
	}

	// 7XNN add vX, NN (no carry)
	addImmInstruction = instruction{
		Name: nameXImm("add"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[regX(opcode)] += imm8(opcode)
			vm.pc += InstructionSize
			return nil
		},
	}

	// 8XY0 ld vX, vY
	ldRegInstruction = instruction{
		Name: nameXY("ld"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[regX(opcode)] = vm.registers[regY(opcode)]
			vm.pc += InstructionSize
			return nil
		},
	}

	// 8XY1 or vX, vY
	orInstruction = instruction{
		Name: nameXY("or"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[regX(opcode)] |= vm.registers[regY(opcode)]
			vm.pc += InstructionSize
			return nil
		},
	}

	// 8XY2 and vX, vY
	andInstruction = instruction{
		Name: nameXY("and"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[regX(opcode)] &= vm.registers[regY(opcode)]
			vm.pc += InstructionSize
			return nil
		},
	}

	// 8XY3 xor vX, vY
	xorInstruction = instruction{
		Name: nameXY("xor"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[regX(opcode)] ^= vm.registers[regY(opcode)]
			vm.pc += InstructionSize
			return nil
		},
	}

	// 8XY4 add vX, vY: VF = carry
	addRegInstruction = instruction{
		Name: nameXY("add"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := regX(opcode)
			sum := uint16(vm.registers[vX]) + uint16(vm.registers[regY(opcode)])

			vm.setWithFlag(vX, uint8(sum), sum > 0xFF)
			vm.pc += InstructionSize
			return nil
		},
	}

	// 8XY5 sub vX, vY: VF = not borrow
	subInstruction = instruction{
		Name: nameXY("sub"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := regX(opcode)
			x, y := vm.registers[vX], vm.registers[regY(opcode)]

			vm.setWithFlag(vX, x-y, x >= y)
			vm.pc += InstructionSize
			return nil
		},
	}

	// 8XY6 shr vX: VF = bit shifted out
	shrInstruction = instruction{
		Name: nameX("shr"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := regX(opcode)
			x := vm.registers[vX]

			vm.setWithFlag(vX, x>>1, x&0x01 != 0)
			vm.pc += InstructionSize
			return nil
		},
	}

	// 8XY7 subn vX, vY: vX = vY - vX, VF = not borrow
	subnInstruction = instruction{
		Name: nameXY("subn"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := regX(opcode)
			x, y := vm.registers[vX], vm.registers[regY(opcode)]

			vm.setWithFlag(vX, y-x, y >= x)
			vm.pc += InstructionSize
			return nil
		},
	}

	// 8XYE shl vX: VF = bit shifted out
	shlInstruction = instruction{
		Name: nameX("shl"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := regX(opcode)
			x := vm.registers[vX]

			vm.setWithFlag(vX, x<<1, x&0x80 != 0)
			vm.pc += InstructionSize
			return nil
		},
	}

	// 9XY0 sne vX, vY
	sneRegInstruction = instruction{
		Name: nameXY("sne"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.skipIf(vm.registers[regX(opcode)] != vm.registers[regY(opcode)])
			return nil
		},
	}

	// ANNN ld i, NNN
	ldIndexInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ld i, 0x%03x", addr12(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.index = addr12(opcode)
			vm.pc += InstructionSize
			return nil
		},
	}

	// BNNN ld i, NNN + v0
	ldIndexOffsetInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ld i, 0x%03x + v0", addr12(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.index = addr12(opcode) + uint16(vm.registers[0])
			vm.pc += InstructionSize
			return nil
		},
	}

	// CXNN rnd vX, NN
	rndInstruction = instruction{
		Name: nameXImm("rnd"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[regX(opcode)] = uint8(vm.rng.Uint32()) & imm8(opcode)
			vm.pc += InstructionSize
			return nil
		},
	}

	// DXYN drw vX, vY, N
	// Sprite rows come from memory at I. A sprite anchored off screen wraps
	// around both edges; one anchored on screen is clipped at the edges.
	// VF is set when any pixel is switched off.
	drwInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("drw v%x, v%x, %d", regX(opcode), regY(opcode), opcode&0x000F)
		},
		Execute: func(vm *VM, opcode uint16) error {
			height := int(opcode & 0x000F)
			if err := checkRange(vm.index, height); err != nil {
				return err
			}

			x0 := int(vm.registers[regX(opcode)])
			y0 := int(vm.registers[regY(opcode)])
			wrap := x0 >= ScreenWidth || y0 >= ScreenHeight

			collision := false
			for row := 0; row < height; row++ {
				y := y0 + row
				if wrap {
					y %= ScreenHeight
				} else if y >= ScreenHeight {
					break
				}

				sprite := vm.memory[int(vm.index)+row]

				const width = 8
				for col := 0; col < width; col++ {
					x := x0 + col
					if wrap {
						x %= ScreenWidth
					} else if x >= ScreenWidth {
						break
					}

					if sprite&(0x80>>col) == 0 {
						continue
					}
					if vm.gfx.xor(x, y) {
						collision = true
					}
				}
			}

			if collision {
				vm.registers[flagRegister] = 1
			} else {
				vm.registers[flagRegister] = 0
			}
			vm.drawFlag = true
			vm.pc += InstructionSize
			return nil
		},
	}

	// EX9E skp vX
	skpInstruction = instruction{
		Name: nameX("skp"),
		Execute: func(vm *VM, opcode uint16) error {
			key := vm.registers[regX(opcode)] & 0x0F
			vm.skipIf(vm.keypad[key])
			return nil
		},
	}

	// EXA1 sknp vX
	sknpInstruction = instruction{
		Name: nameX("sknp"),
		Execute: func(vm *VM, opcode uint16) error {
			key := vm.registers[regX(opcode)] & 0x0F
			vm.skipIf(!vm.keypad[key])
			return nil
		},
	}

	// FX07 ld vX, dt
	ldDelayInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ld v%x, dt", regX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[regX(opcode)] = vm.delayTimer
			vm.pc += InstructionSize
			return nil
		},
	}

	// FX0A ld vX, k: block until CompleteKeyWait. The program counter stays
	// on this instruction while blocked.
	waitKeyInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ld v%x, k", regX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.state = WaitingForKey
			vm.waitReg = uint8(regX(opcode))
			vm.keypad = [KeyCount]bool{}
			return nil
		},
	}

	// FX15 ld dt, vX
	setDelayInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ld dt, v%x", regX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.delayTimer = vm.registers[regX(opcode)]
			vm.pc += InstructionSize
			return nil
		},
	}

	// FX18 ld st, vX
	setSoundInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ld st, v%x", regX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.soundTimer = vm.registers[regX(opcode)]
			vm.pc += InstructionSize
			return nil
		},
	}

	// FX1E add i, vX
	addIndexInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("add i, v%x", regX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.index += uint16(vm.registers[regX(opcode)])
			vm.pc += InstructionSize
			return nil
		},
	}

	// FX29 ld f, vX: point I at the glyph for the low nibble of vX
	fontInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ld f, v%x", regX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.index = glyphAddr(vm.registers[regX(opcode)])
			vm.pc += InstructionSize
			return nil
		},
	}

	// FX33 ld b, vX: hundreds, tens and units at I, I+1, I+2
	bcdInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ld b, v%x", regX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			if err := checkRange(vm.index, 3); err != nil {
				return err
			}

			x := vm.registers[regX(opcode)]
			vm.memory[vm.index] = x / 100
			vm.memory[vm.index+1] = (x / 10) % 10
			vm.memory[vm.index+2] = x % 10
			vm.pc += InstructionSize
			return nil
		},
	}

	// FX55 ld [i], vX: store v0..vX inclusive, I unchanged
	storeInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ld [i], v%x", regX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			n := regX(opcode) + 1
			if err := checkRange(vm.index, int(n)); err != nil {
				return err
			}

			copy(vm.memory[vm.index:vm.index+n], vm.registers[:n])
			vm.pc += InstructionSize
			return nil
		},
	}

	// FX65 ld vX, [i]: load v0..vX inclusive, I unchanged
	loadInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ld v%x, [i]", regX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			n := regX(opcode) + 1
			if err := checkRange(vm.index, int(n)); err != nil {
				return err
			}

			copy(vm.registers[:n], vm.memory[vm.index:vm.index+n])
			vm.pc += InstructionSize
			return nil
		},
	}

	unknownInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("unknown 0x%04X", opcode)
		},
		Execute: func(vm *VM, opcode uint16) error {
			return ErrUnknownOpcode
		},
	}
)
