package mcp

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/errors"
	"github.com/ctagard/debugify/internal/launchconfig"
	"github.com/ctagard/debugify/internal/session"
	"github.com/ctagard/debugify/pkg/types"
)

// maxEvents bounds the per-target event log between debug_state calls.
const maxEvents = 100

// targetEntry is one registered target. Debug context only.
type targetEntry struct {
	id       string
	target   *session.Target
	resolved *launchconfig.Resolved
	process  *session.Process
	events   []string
	dropped  int
}

func (e *targetEntry) record(format string, args ...interface{}) {
	if len(e.events) == maxEvents {
		e.events = e.events[1:]
		e.dropped++
	}
	e.events = append(e.events, fmt.Sprintf(format, args...))
}

// drainEvents returns the logged events and clears the log.
func (e *targetEntry) drainEvents() []string {
	events := e.events
	if e.dropped > 0 {
		events = append([]string{fmt.Sprintf("%d older events dropped", e.dropped)}, events...)
	}
	e.events = nil
	e.dropped = 0
	return events
}

func (e *targetEntry) info() types.TargetInfo {
	info := types.TargetInfo{
		ID:          e.id,
		Path:        e.target.Path(),
		Adapter:     e.target.Config().Adapter,
		Breakpoints: e.target.BreakpointCount(),
	}
	if p := e.target.Process(); p != nil {
		snap := p.Snapshot()
		info.Process = &snap
	}
	return info
}

// addTarget creates and registers a target.
func (s *Server) addTarget(cfg backend.TargetConfig, resolved *launchconfig.Resolved) (*targetEntry, error) {
	if len(s.targets) >= s.config.MaxTargets {
		return nil, errors.TargetLimitReached(s.config.MaxTargets)
	}

	t, err := session.NewTarget(s.backend, cfg, session.WithOutputChunkSize(s.config.OutputChunkSize))
	if err != nil {
		return nil, err
	}

	e := &targetEntry{
		id:       uuid.NewString(),
		target:   t,
		resolved: resolved,
	}
	t.ProcessCreated().Listen(func(p *session.Process) { s.watch(e, p) })
	t.BreakpointsChanged().Listen(func(id int) { e.record("breakpoint %d changed", id) })
	t.ModulesChanged().ListenFunc(func() { e.record("modules changed") })

	s.targets[e.id] = e
	s.order = append(s.order, e.id)
	s.log.Debugf("target %s created for %s", e.id, t.Path())
	return e, nil
}

// watch hands a new process to the pump and logs its lifecycle.
func (s *Server) watch(e *targetEntry, p *session.Process) {
	if e.process != nil && e.process != p {
		s.pump.Unwatch(e.process)
	}
	e.process = p
	s.pump.Watch(p)

	e.record("process %d created", p.ProcessID())
	p.StateChanged().Listen(func(st session.ProcessState) {
		if st == session.Exited {
			e.record("state %s: %s", st, p.ExitDescription())
			return
		}
		e.record("state %s", st)
	})
	p.Ended().ListenFunc(func() {
		e.record("process %d ended", p.ProcessID())
		s.pump.Unwatch(p)
	})
}

func (s *Server) lookup(id string) (*targetEntry, error) {
	if id == "" {
		return nil, errors.MissingParameter("targetId", "Pass the targetId returned by debug_load_target or debug_launch.")
	}
	e, ok := s.targets[id]
	if !ok {
		return nil, errors.TargetNotFound(id)
	}
	return e, nil
}

// liveProcess returns the target's process or a NoProcess error.
func (s *Server) liveProcess(id, operation string) (*targetEntry, *session.Process, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	p := e.target.Process()
	if p == nil {
		return e, nil, errors.NoProcess(operation)
	}
	return e, p, nil
}

func (s *Server) closeTarget(id string) bool {
	e, ok := s.targets[id]
	if !ok {
		return false
	}
	if e.process != nil {
		s.pump.Unwatch(e.process)
	}
	e.target.Close()
	delete(s.targets, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.log.Debugf("target %s closed", id)
	return true
}
