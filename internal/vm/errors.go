package vm

import (
	"errors"
	"fmt"
)

var (
	// Guest program faults
	ErrUnknownOpcode          = errors.New("unknown opcode")
	ErrStackOverflow          = errors.New("stack overflow")
	ErrStackUnderflow         = errors.New("stack underflow")
	ErrMemoryAccessOutOfRange = errors.New("memory access out of range")

	// Caller contract violations
	ErrInvalidKeyIndex  = errors.New("invalid key index")
	ErrProgramTooLarge  = errors.New("program too large")
	ErrNotWaitingForKey = errors.New("not waiting for key")
)

// ExecError is returned by Step when the guest program faults. The machine
// state is left as it was before the faulting instruction.
type ExecError struct {
	PC     uint16
	Opcode uint16
	Err    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("pc 0x%04x opcode 0x%04X: %v", e.PC, e.Opcode, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
