package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kapitanov/chip8core/internal/emulator"
	"github.com/kapitanov/chip8core/internal/hal"
	"github.com/kapitanov/chip8core/internal/vm"
	"github.com/spf13/cobra"
)

func main() {
	cmd := newRootCommand()

	cmd.SetArgs(os.Args[1:])
	if err := cmd.Execute(); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           fmt.Sprintf("%s PATH_TO_ROM_FILE", filepath.Base(os.Args[0])),
		Short:         "Run a CHIP-8 program",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	verbose := cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")

	cfg := emulator.DefaultConfig()
	cmd.Flags().IntVar(&cfg.InstructionsPerFrame, "ipf", cfg.InstructionsPerFrame, "instructions executed per 60 Hz frame")
	cmd.Flags().Var(&cfg.KeyWait, "key-wait", "key edge that completes a wait for key (press or release)")

	cmd.PersistentPreRun = func(*cobra.Command, []string) {
		setupLogging(*verbose)
	}

	cmd.RunE = func(_ *cobra.Command, args []string) error {
		rom, err := readROM(args[0])
		if err != nil {
			return err
		}

		return run(rom, cfg)
	}

	cmd.AddCommand(newDisasmCommand())
	return cmd
}

func setupLogging(verbose bool) {
	loggerOpts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if verbose {
		loggerOpts.Level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, loggerOpts)))
}

func readROM(path string) ([]byte, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load file %q: %w", path, err)
	}

	if len(bs) > vm.MaxProgramSize {
		return nil, fmt.Errorf("unable to load file %q: %w", path, vm.ErrProgramTooLarge)
	}

	return bs, nil
}

func run(rom []byte, cfg emulator.Config) error {
	h, err := hal.New("CHIP-8")
	if err != nil {
		return fmt.Errorf("unable to initialize hal: %w", err)
	}
	defer h.Shutdown()

	emu, err := emulator.New(h, rom, cfg)
	if err != nil {
		return err
	}

	for {
		err = emu.Run()

		var execErr *vm.ExecError
		if errors.As(err, &execErr) {
			slog.Error("program halted", "pc", fmt.Sprintf("0x%04x", execErr.PC), "err", execErr.Err)
			err = emu.WaitForReboot()
		}

		switch {
		case errors.Is(err, hal.ErrQuit):
			return nil

		case errors.Is(err, hal.ErrReboot):
			if err := emu.Reboot(); err != nil {
				return err
			}

		default:
			return err
		}
	}
}
