package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownCommand is returned for command names that do not decode
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingArgument is returned when a command needs an argument
	ErrMissingArgument = errors.New("missing argument")
)

// Command is one user action. The set is closed: only the types in this file
// implement it.
type Command interface {
	Name() string
	isCommand()
}

// AddFolder adds a folder to the collection
type AddFolder struct{ Path string }

// RemoveFolder removes a folder and its images
type RemoveFolder struct{ Path string }

// NextImage advances to the next image, wrapping at the end
type NextImage struct{}

// PreviousImage goes back one image, wrapping at the start
type PreviousImage struct{}

// ToggleTimer starts or pauses the session timer
type ToggleTimer struct{}

// ToggleAlwaysOnTop flips the always-on-top flag
type ToggleAlwaysOnTop struct{}

// SetTrackedProcess sets the process whose focus keeps the timer running.
// An empty name clears tracking.
type SetTrackedProcess struct{ Process string }

// ClearTrackedProcess disables focus tracking
type ClearTrackedProcess struct{}

// ResetTimer zeroes the elapsed time without changing the run state
type ResetTimer struct{}

// Rescan re-reads every folder
type Rescan struct{}

func (AddFolder) Name() string           { return "add_folder" }
func (RemoveFolder) Name() string        { return "remove_folder" }
func (NextImage) Name() string           { return "next" }
func (PreviousImage) Name() string       { return "previous" }
func (ToggleTimer) Name() string         { return "toggle_timer" }
func (ToggleAlwaysOnTop) Name() string   { return "toggle_always_on_top" }
func (SetTrackedProcess) Name() string   { return "set_tracked_process" }
func (ClearTrackedProcess) Name() string { return "clear_tracked_process" }
func (ResetTimer) Name() string          { return "reset_timer" }
func (Rescan) Name() string              { return "rescan" }

func (AddFolder) isCommand()           {}
func (RemoveFolder) isCommand()        {}
func (NextImage) isCommand()           {}
func (PreviousImage) isCommand()       {}
func (ToggleTimer) isCommand()         {}
func (ToggleAlwaysOnTop) isCommand()   {}
func (SetTrackedProcess) isCommand()   {}
func (ClearTrackedProcess) isCommand() {}
func (ResetTimer) isCommand()          {}
func (Rescan) isCommand()              {}

type commandSpec struct {
	needsArg bool
	build    func(arg string) Command
}

var commandTable = map[string]commandSpec{
	"add_folder":            {needsArg: true, build: func(arg string) Command { return AddFolder{Path: arg} }},
	"remove_folder":         {needsArg: true, build: func(arg string) Command { return RemoveFolder{Path: arg} }},
	"next":                  {build: func(string) Command { return NextImage{} }},
	"previous":              {build: func(string) Command { return PreviousImage{} }},
	"toggle_timer":          {build: func(string) Command { return ToggleTimer{} }},
	"toggle_always_on_top":  {build: func(string) Command { return ToggleAlwaysOnTop{} }},
	"set_tracked_process":   {build: func(arg string) Command { return SetTrackedProcess{Process: arg} }},
	"clear_tracked_process": {build: func(string) Command { return ClearTrackedProcess{} }},
	"reset_timer":           {build: func(string) Command { return ResetTimer{} }},
	"rescan":                {build: func(string) Command { return Rescan{} }},
}

var commandAliases = map[string]string{
	"prev":    "previous",
	"ontop":   "toggle_always_on_top",
	"track":   "set_tracked_process",
	"untrack": "clear_tracked_process",
	"toggle":  "toggle_timer",
}

// ParseCommand decodes a command name and its optional argument. Names are
// case-insensitive and '-' may be used in place of '_'.
func ParseCommand(name, arg string) (Command, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	if alias, ok := commandAliases[key]; ok {
		key = alias
	}

	entry, ok := commandTable[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	arg = strings.TrimSpace(arg)
	if entry.needsArg && arg == "" {
		return nil, fmt.Errorf("%w: %s requires a value", ErrMissingArgument, key)
	}
	return entry.build(arg), nil
}

// CommandNames lists the canonical command names
func CommandNames() []string {
	names := make([]string, 0, len(commandTable))
	for name := range commandTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
