package emulator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

var ErrUnknownKeyWaitPolicy = errors.New("unknown key wait policy")

// KeyWaitPolicy decides which keypad edge completes a pending FX0A.
type KeyWaitPolicy uint8

const (
	// KeyWaitOnRelease completes the wait when a key that went down after
	// the wait began is released.
	KeyWaitOnRelease KeyWaitPolicy = iota
	// KeyWaitOnPress completes the wait on the first key down.
	KeyWaitOnPress
)

var _ pflag.Value = (*KeyWaitPolicy)(nil)

func (p KeyWaitPolicy) String() string {
	switch p {
	case KeyWaitOnRelease:
		return "release"
	case KeyWaitOnPress:
		return "press"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

func (p *KeyWaitPolicy) Set(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "release", "up":
		*p = KeyWaitOnRelease
	case "press", "down":
		*p = KeyWaitOnPress
	default:
		return fmt.Errorf("%w: %q (want press or release)", ErrUnknownKeyWaitPolicy, s)
	}
	return nil
}

func (p *KeyWaitPolicy) Type() string {
	return "press|release"
}
