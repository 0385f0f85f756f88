package session

import (
	"fmt"
	"path/filepath"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/errors"
	"github.com/ctagard/debugify/pkg/types"
)

// BreakpointLocation is one resolved instance of a breakpoint. It is a plain
// value and stays usable after the breakpoint that produced it is gone.
type BreakpointLocation struct {
	id       int
	file     string
	line     int
	resolved bool
}

// NewBreakpointLocation builds a location value.
func NewBreakpointLocation(id int, file string, line int, resolved bool) BreakpointLocation {
	return BreakpointLocation{id: id, file: file, line: line, resolved: resolved}
}

func (l BreakpointLocation) ID() int        { return l.id }
func (l BreakpointLocation) File() string   { return l.file }
func (l BreakpointLocation) Line() int      { return l.line }
func (l BreakpointLocation) Resolved() bool { return l.resolved }

// Matches reports whether the location is at file:line.
func (l BreakpointLocation) Matches(file string, line int) bool {
	return l.line == line && samePath(l.file, file)
}

func (l BreakpointLocation) Snapshot() types.LocationInfo {
	return types.LocationInfo{ID: l.id, File: l.file, Line: l.line, Resolved: l.resolved}
}

func samePath(a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	return filepath.Clean(a) == filepath.Clean(b)
}

// Breakpoint is a handle to one breakpoint definition owned by a Target.
//
// It is a value type: copies refer to the same backend breakpoint, so
// toggling one copy is observed through every other. The zero Breakpoint is
// invalid, and so is every copy once the breakpoint is removed or its target
// closed.
type Breakpoint struct {
	target *Target
	handle backend.BreakpointHandle
}

func newBreakpoint(t *Target, h backend.BreakpointHandle) Breakpoint {
	return Breakpoint{target: t, handle: h}
}

// IsValid reports whether b refers to a breakpoint its target still owns.
func (b Breakpoint) IsValid() bool {
	return b.handle != nil && b.target != nil && b.target.owns(b.handle)
}

// Target returns the owning target.
func (b Breakpoint) Target() *Target {
	return b.target
}

// ID returns the breakpoint's stable id, or 0 for an invalid handle.
func (b Breakpoint) ID() int {
	if b.handle == nil {
		return 0
	}
	return b.handle.ID()
}

// Enabled reads the enabled flag from the backend.
func (b Breakpoint) Enabled() bool {
	return b.IsValid() && b.handle.Enabled()
}

// SetEnabled forwards the flag to the backend immediately.
func (b Breakpoint) SetEnabled(enabled bool) Result {
	if !b.IsValid() {
		return failed(errors.InvalidHandle("breakpoint"))
	}
	if err := b.handle.SetEnabled(enabled); err != nil {
		return rejected("toggle breakpoint", err)
	}
	b.target.breakpointsChanged.Fire(b.handle.ID())
	return succeeded
}

// LocationCount reads the current number of locations from the backend. A
// removed breakpoint has none.
func (b Breakpoint) LocationCount() int {
	if !b.IsValid() {
		return 0
	}
	return b.handle.NumLocations()
}

// LocationAt returns location i.
func (b Breakpoint) LocationAt(i int) BreakpointLocation {
	n := b.LocationCount()
	if i < 0 || i >= n {
		panic(fmt.Sprintf("session: location index %d out of range [0,%d)", i, n))
	}
	info := b.handle.LocationAt(i)
	return NewBreakpointLocation(info.ID, info.File, info.Line, info.Resolved)
}

// Locations returns every current location.
func (b Breakpoint) Locations() []BreakpointLocation {
	n := b.LocationCount()
	locs := make([]BreakpointLocation, 0, n)
	for i := 0; i < n; i++ {
		locs = append(locs, b.LocationAt(i))
	}
	return locs
}

// FindLocation returns the first location at file:line, scanning in order.
func (b Breakpoint) FindLocation(file string, line int) (BreakpointLocation, bool) {
	for i, n := 0, b.LocationCount(); i < n; i++ {
		loc := b.LocationAt(i)
		if loc.Matches(file, line) {
			return loc, true
		}
	}
	return BreakpointLocation{}, false
}

// Snapshot copies the breakpoint out for use off the debug context.
func (b Breakpoint) Snapshot() types.BreakpointInfo {
	info := types.BreakpointInfo{
		ID:        b.ID(),
		Enabled:   b.Enabled(),
		Locations: []types.LocationInfo{},
	}
	for _, loc := range b.Locations() {
		info.Locations = append(info.Locations, loc.Snapshot())
	}
	return info
}
