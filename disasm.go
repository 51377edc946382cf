package main

import (
	"fmt"
	"io"

	"github.com/kapitanov/chip8core/internal/vm"
	"github.com/spf13/cobra"
)

func newDisasmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm PATH_TO_ROM_FILE",
		Short: "Print a listing of a CHIP-8 program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rom, err := readROM(args[0])
			if err != nil {
				return err
			}

			return disassemble(cmd.OutOrStdout(), rom)
		},
	}
}

// disassemble writes one line per instruction word. Sprite data and other
// non-code bytes are decoded as instructions too; a trailing odd byte is
// printed as raw data.
func disassemble(w io.Writer, rom []byte) error {
	addr := vm.ProgramStart
	for i := 0; i+1 < len(rom); i += vm.InstructionSize {
		opcode := uint16(rom[i])<<8 | uint16(rom[i+1])
		if _, err := fmt.Fprintf(w, "0x%03x  %04X  %s\n", addr, opcode, vm.Disassemble(opcode)); err != nil {
			return err
		}
		addr += vm.InstructionSize
	}

	if len(rom)%2 == 1 {
		if _, err := fmt.Fprintf(w, "0x%03x  %02X    db 0x%02x\n", addr, rom[len(rom)-1], rom[len(rom)-1]); err != nil {
			return err
		}
	}

	return nil
}
