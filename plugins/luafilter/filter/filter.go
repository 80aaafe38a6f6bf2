// Package filter runs a site-supplied Lua script as a submit filter.
// The script defines pre_submit and post_submit functions; each
// receives the job options as a mutable table and returns a status
// code plus an optional rejection message.
package filter

import (
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"subgate.dev/cli/internal/core/domain"
	"subgate.dev/cli/internal/infrastructure/procloader"
)

// Filter is one Lua interpreter running the site script. lua.LState is
// not safe for concurrent use, so every call takes the mutex.
type Filter struct {
	mu     sync.Mutex
	state  *lua.LState
	script string
}

// New loads the script and checks it defines both filter functions.
func New(scriptPath string) (*Filter, error) {
	L := lua.NewState()
	registerSubgateModule(L)

	if err := L.DoFile(scriptPath); err != nil {
		L.Close()
		return nil, fmt.Errorf("load lua script %s: %w", scriptPath, err)
	}
	for _, fn := range []string{"pre_submit", "post_submit"} {
		if L.GetGlobal(fn).Type() != lua.LTFunction {
			L.Close()
			return nil, fmt.Errorf("lua script %s does not define function %s", scriptPath, fn)
		}
	}

	return &Filter{state: L, script: scriptPath}, nil
}

func (f *Filter) Info() (procloader.ModuleInfo, error) {
	return procloader.ModuleInfo{
		Type:    "cli_filter/lua",
		Name:    "lua submit filter",
		Version: "1.0.0",
	}, nil
}

func (f *Filter) PreSubmit(kind domain.CliKind, opts *domain.JobOptions) error {
	return f.call("pre_submit", opts, lua.LString(kind.String()))
}

func (f *Filter) PostSubmit(kind domain.CliKind, jobID uint32, opts *domain.JobOptions) error {
	return f.call("post_submit", opts, lua.LString(kind.String()), lua.LNumber(jobID))
}

// call invokes fn(args..., options) and applies the script's table
// mutations back onto opts. The script returns a status code and an
// optional message; any nonzero status vetoes the operation.
func (f *Filter) call(fn string, opts *domain.JobOptions, args ...lua.LValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	L := f.state
	tbl := optionsToTable(L, opts)

	if err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal(fn),
		NRet:    2,
		Protect: true,
	}, append(args, tbl)...); err != nil {
		return fmt.Errorf("lua %s: %w", fn, err)
	}

	status := L.Get(-2)
	message := L.Get(-1)
	L.Pop(2)

	rc, ok := status.(lua.LNumber)
	if !ok {
		return fmt.Errorf("lua %s returned %s, want a numeric status", fn, status.Type())
	}
	if rc != 0 {
		if msg, ok := message.(lua.LString); ok && msg != "" {
			return fmt.Errorf("lua %s: %s", fn, string(msg))
		}
		return fmt.Errorf("lua %s returned status %d", fn, int(rc))
	}

	tableToOptions(tbl, opts)
	return nil
}

// Close shuts down the interpreter.
func (f *Filter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Close()
}

func optionsToTable(L *lua.LState, opts *domain.JobOptions) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("job_name", lua.LString(opts.JobName))
	tbl.RawSetString("partition", lua.LString(opts.Partition))
	tbl.RawSetString("time_limit", lua.LNumber(opts.TimeLimit))
	tbl.RawSetString("num_tasks", lua.LNumber(opts.NumTasks))
	tbl.RawSetString("comment", lua.LString(opts.Comment))

	env := L.NewTable()
	for k, v := range opts.Env {
		env.RawSetString(k, lua.LString(v))
	}
	tbl.RawSetString("env", env)
	return tbl
}

func tableToOptions(tbl *lua.LTable, opts *domain.JobOptions) {
	if v, ok := tbl.RawGetString("job_name").(lua.LString); ok {
		opts.JobName = string(v)
	}
	if v, ok := tbl.RawGetString("partition").(lua.LString); ok {
		opts.Partition = string(v)
	}
	if v, ok := tbl.RawGetString("time_limit").(lua.LNumber); ok {
		opts.TimeLimit = int(v)
	}
	if v, ok := tbl.RawGetString("num_tasks").(lua.LNumber); ok {
		opts.NumTasks = int(v)
	}
	if v, ok := tbl.RawGetString("comment").(lua.LString); ok {
		opts.Comment = string(v)
	}
	if env, ok := tbl.RawGetString("env").(*lua.LTable); ok {
		m := make(map[string]string)
		env.ForEach(func(k, v lua.LValue) {
			m[k.String()] = v.String()
		})
		opts.Env = m
	}
}

// registerSubgateModule exposes a small subgate table to scripts, with
// log_info and log_error writing to the plugin's stderr (which the
// host forwards in debug mode).
func registerSubgateModule(L *lua.LState) {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"log_info": func(L *lua.LState) int {
			fmt.Fprintf(os.Stderr, "lua filter: %s\n", L.CheckString(1))
			return 0
		},
		"log_error": func(L *lua.LState) int {
			fmt.Fprintf(os.Stderr, "lua filter error: %s\n", L.CheckString(1))
			return 0
		},
	})
	L.SetGlobal("subgate", mod)
}
