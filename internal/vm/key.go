package vm

import "fmt"

// Key is a hexadecimal keypad key.
//
//	| 1 | 2 | 3 | C |
//	| 4 | 5 | 6 | D |
//	| 7 | 8 | 9 | E |
//	| A | 0 | B | F |
type Key uint8

const (
	Key0 = Key(iota)
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
)

func (k Key) String() string {
	return fmt.Sprintf("%X", uint8(k))
}

func (k Key) valid() bool {
	return k < KeyCount
}

// SetKey records a key press (down) or release.
func (vm *VM) SetKey(key Key, down bool) error {
	if !key.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidKeyIndex, key)
	}

	vm.keypad[key] = down
	return nil
}

// IsKeyDown reports whether key is currently pressed.
func (vm *VM) IsKeyDown(key Key) (bool, error) {
	if !key.valid() {
		return false, fmt.Errorf("%w: %d", ErrInvalidKeyIndex, key)
	}

	return vm.keypad[key], nil
}

// CompleteKeyWait resolves a pending FX0A: key is stored into the waiting
// register and execution resumes at the next instruction.
func (vm *VM) CompleteKeyWait(key Key) error {
	if !key.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidKeyIndex, key)
	}

	if vm.state != WaitingForKey {
		return ErrNotWaitingForKey
	}

	vm.registers[vm.waitReg] = uint8(key)
	vm.state = Running
	vm.pc += InstructionSize
	return nil
}
