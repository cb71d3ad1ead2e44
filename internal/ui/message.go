package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/qbx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgQueryFinished
	MsgExported
)

// queryFinished carries the engine's return values for the query started as seq.
type queryFinished struct {
	seq     int
	results *tasks.Results
	err     error
}

type exported struct {
	path string
	err  error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// queryFinishedMsg is the constructor for [MsgQueryFinished]
func queryFinishedMsg(seq int, results *tasks.Results, err error) Msg {
	return Msg{kind: MsgQueryFinished, data: queryFinished{seq, results, err}}
}

// exportedMsg is the constructor for [MsgExported]
func exportedMsg(path string, err error) Msg {
	return Msg{kind: MsgExported, data: exported{path, err}}
}
