package session

import (
	"errors"

	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/tts"
)

var (
	// ErrModelUnavailable means the model could not be built; the session
	// cannot continue.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrNotInitialized is returned when generation runs before a successful Load.
	ErrNotInitialized = errors.New("session not initialized")
)

// Action tells the command loop what to do after a handler returns.
type Action int

const (
	ActionContinue Action = iota
	ActionExit
)

type State int

const (
	StateUninitialized State = iota
	StateReady
	StateLooping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateLooping:
		return "looping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Options seed a new session.
type Options struct {
	ModelPath  string
	Device     string
	Language   string
	QuietBuild bool
	OutputPath string
	Text       string
	Speed      float64
	Voice      string
}

// OptionsFromConfig derives session options. Debug runs build the model
// verbosely.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		ModelPath:  cfg.Model.Path,
		Device:     cfg.Model.Device,
		Language:   cfg.Model.Language,
		QuietBuild: cfg.Model.QuietBuild && !cfg.Session.Debug,
		OutputPath: cfg.Session.OutputPath,
		Text:       cfg.Session.Text,
		Speed:      cfg.Session.Speed,
		Voice:      cfg.Session.Voice,
	}
}

// Session is the mutable state behind one interactive run.
type Session struct {
	ID         string
	Model      tts.Model
	Voices     []string
	Voice      string
	Speed      float64
	Text       string
	OutputPath string
	State      State
	// LastSaved reports whether the most recent generation was persisted.
	LastSaved bool
}
