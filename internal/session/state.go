package session

import (
	"fmt"
	"sync"

	"github.com/ctagard/debugify/internal/backend"
)

// ProcessState is the lifecycle state of a debuggee.
//
// Invalid is both the sentinel before a process exists and the terminal state
// reached once an exited or detached process has fully gone away.
type ProcessState int

const (
	Invalid ProcessState = iota
	Unloaded
	Connected
	Attaching
	Launching
	Stopped
	Running
	Stepping
	Crashed
	Detached
	Exited
	Suspended
)

var processStateNames = [...]string{
	Invalid:   "invalid",
	Unloaded:  "unloaded",
	Connected: "connected",
	Attaching: "attaching",
	Launching: "launching",
	Stopped:   "stopped",
	Running:   "running",
	Stepping:  "stepping",
	Crashed:   "crashed",
	Detached:  "detached",
	Exited:    "exited",
	Suspended: "suspended",
}

// AllProcessStates lists every ProcessState in declaration order.
func AllProcessStates() []ProcessState {
	states := make([]ProcessState, len(processStateNames))
	for i := range processStateNames {
		states[i] = ProcessState(i)
	}
	return states
}

func (s ProcessState) String() string {
	if s < 0 || int(s) >= len(processStateNames) {
		return fmt.Sprintf("ProcessState(%d)", int(s))
	}
	return processStateNames[s]
}

// IsLive reports whether a process in this state still needs to be killed or
// detached before it can be released.
func (s ProcessState) IsLive() bool {
	switch s {
	case Invalid, Unloaded, Detached, Exited:
		return false
	}
	return true
}

// stateTable translates backend states. The backend owns its own ordering, so
// nothing here relies on the two enums lining up numerically.
var stateTable = map[backend.State]ProcessState{
	backend.StateUnknown:   Invalid,
	backend.StateIdle:      Unloaded,
	backend.StateConnected: Connected,
	backend.StateAttaching: Attaching,
	backend.StateLaunching: Launching,
	backend.StateRunning:   Running,
	backend.StateStepping:  Stepping,
	backend.StateStopped:   Stopped,
	backend.StateCrashed:   Crashed,
	backend.StateSuspended: Suspended,
	backend.StateDetached:  Detached,
	backend.StateExited:    Exited,
	backend.StateGone:      Invalid,
}

// mapState translates a backend state. States the table does not know about
// map to Invalid.
func mapState(s backend.State) ProcessState {
	if ps, ok := stateTable[s]; ok {
		return ps
	}
	return Invalid
}

// VerifyStateMapping checks that every backend state is translated and every
// ProcessState is reachable from some backend state.
func VerifyStateMapping() error {
	return verifyMapping(stateTable, backend.AllStates())
}

func verifyMapping(table map[backend.State]ProcessState, native []backend.State) error {
	reached := make(map[ProcessState]bool, len(processStateNames))
	for _, s := range native {
		ps, ok := table[s]
		if !ok {
			return fmt.Errorf("backend state %q has no process state mapping", s)
		}
		if ps < 0 || int(ps) >= len(processStateNames) {
			return fmt.Errorf("backend state %q maps to out of range value %d", s, int(ps))
		}
		reached[ps] = true
	}
	for _, ps := range AllProcessStates() {
		if !reached[ps] {
			return fmt.Errorf("process state %q is not reachable from any backend state", ps)
		}
	}
	return nil
}

var (
	verifyOnce sync.Once
	verifyErr  error
)

func verifyStateMappingOnce() error {
	verifyOnce.Do(func() {
		verifyErr = VerifyStateMapping()
	})
	return verifyErr
}
