package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes allowed per
// formula evaluation when no override is configured.
const DefaultInstructionLimit = 100_000

// Scripts evaluates Lua damage formulas. Each .lua file in the script
// directory defines one global function named after the file, taking
// (base, attacker_hp, target_hp) and returning the final damage.
//
// A single sandboxed VM is shared and guarded by a mutex; formula
// evaluations are short and already serialized by the caller in practice.
type Scripts struct {
	mu    sync.Mutex
	state *lua.LState
	limit int
}

// countingContext cancels itself after Done() has been called limit times.
// GopherLua calls Done() once per opcode, making this an exact instruction
// count limit.
type countingContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
}

func (c *countingContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.cancel()
	}
	return c.Context.Done()
}

func newCountingContext(limit int) context.Context {
	base, cancel := context.WithCancel(context.Background())
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &countingContext{Context: base, cancel: cancel, remaining: rem}
}

// newSandboxedState creates a Lua state with only the safe standard
// libraries loaded and the dangerous base globals removed.
func newSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// LoadScripts loads every .lua file under dir into a sandboxed VM.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a Scripts ready for Eval, or a non-nil error if any
// file fails to load. A missing directory yields an empty Scripts: formulas
// are optional content.
func LoadScripts(dir string, instLimit int) (*Scripts, error) {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	s := &Scripts{state: newSandboxedState(), limit: instLimit}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading script directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := s.state.DoFile(path); err != nil {
			return nil, fmt.Errorf("loading script %s: %w", path, err)
		}
	}
	return s, nil
}

// Close releases the underlying Lua VM.
func (s *Scripts) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Close()
}

// Eval calls the named formula function with (base, attackerHP, targetHP)
// and returns the computed damage.
//
// Precondition: fn must name a function defined by a loaded script.
// Postcondition: Returns the damage value, or an error if the function is
// missing, errors, exceeds the instruction limit, or returns a non-number.
func (s *Scripts) Eval(fn string, base, attackerHP, targetHP int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fnVal := s.state.GetGlobal(fn)
	if fnVal.Type() != lua.LTFunction {
		return 0, fmt.Errorf("formula %q is not defined", fn)
	}

	s.state.SetContext(newCountingContext(s.limit))
	err := s.state.CallByParam(lua.P{
		Fn:      fnVal,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(base), lua.LNumber(attackerHP), lua.LNumber(targetHP))
	if err != nil {
		return 0, fmt.Errorf("evaluating formula %q: %w", fn, err)
	}

	ret := s.state.Get(-1)
	s.state.Pop(1)
	num, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("formula %q returned %s, want number", fn, ret.Type())
	}
	return int(num), nil
}
