package exec

import (
	"fmt"
	"strings"
)

// Mode selects how a batch is executed. The zero value is ModeParallel.
type Mode uint8

const (
	// ModeParallel runs the batch on the engine's parallel executor. Any
	// engine failure fails the batch.
	ModeParallel Mode = iota
	// ModeSequential runs transactions one by one in input order, committing
	// each one's writes before the next. Failing transactions are skipped.
	ModeSequential
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "parallel":
		return ModeParallel, nil
	case "sequential":
		return ModeSequential, nil
	}
	return 0, fmt.Errorf("unknown execution mode %q", s)
}

func (m Mode) String() string {
	switch m {
	case ModeParallel:
		return "parallel"
	case ModeSequential:
		return "sequential"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
