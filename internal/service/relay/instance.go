package relay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"
)

// maxCommLength is how much of an executable name Linux reports per process.
const maxCommLength = 15

// ErrAlreadyRunning is returned when another relay owns the outputs already.
var ErrAlreadyRunning = errors.New("another relay instance is running")

// ensureSingleInstance fails when another process runs the same executable.
// Two relays would fight over the pins and the trigger port.
func ensureSingleInstance() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	processList, err := ps.Processes()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	if other, found := findOtherInstance(processList, os.Getpid(), filepath.Base(executable)); found {
		return fmt.Errorf("%w: pid %d", ErrAlreadyRunning, other.Pid())
	}

	return nil
}

// findOtherInstance returns a process other than self running executable.
func findOtherInstance(processList []ps.Process, self int, executable string) (ps.Process, bool) {
	if len(executable) > maxCommLength {
		executable = executable[:maxCommLength]
	}

	for _, process := range processList {
		if process.Pid() == self {
			continue
		}

		if process.Executable() != executable {
			continue
		}

		return process, true
	}

	return nil, false
}
