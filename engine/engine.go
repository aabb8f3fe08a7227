package engine

import "github.com/sccsgo/sccsgo/config"

// Engine wires together the process-global configuration (spec.md §5, §9)
// and the three capability sets the rest of the module consumes:
// LineDiff, UserInfo, MrValidator. It holds no file-handling logic of its
// own — packages like admin, extract and record take Options structs
// built from an Engine's fields at the call site, rather than reaching
// into a global, the same way the teacher's GitGraph takes a
// *logrus.Logger and a GitGraphOption at construction
// (rcowham-gitp4transfer/cmd/gitgraph/gitgraph.go's NewGitGraph).
//
// Engine does not import admin/extract/record/report itself: those
// packages already import engine for Failure and the capability
// interfaces, so the dependency only runs one way.
type Engine struct {
	Config      *config.Config
	Differ      LineDiff
	User        UserInfo
	MrValidator MrValidator
}

// New builds an Engine from cfg and the embedding program's capability
// implementations. Any of differ, user, mrValidator may be nil; callers
// check for nil the same way record.Apply falls back to a default
// LineDiff when Engine.Differ is nil. A nil cfg is replaced by
// config.Default().
func New(cfg *config.Config, differ LineDiff, user UserInfo, mrValidator MrValidator) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Engine{Config: cfg, Differ: differ, User: user, MrValidator: mrValidator}
}

// CurrentUser returns the embedding program's identity, or "" if no
// UserInfo capability was supplied.
func (e *Engine) CurrentUser() string {
	if e.User == nil {
		return ""
	}
	return e.User.Name()
}

// StaticUser is the simplest UserInfo implementation: a fixed identity,
// useful for embedding programs that resolve the user once (e.g. from
// os/user or an environment variable) before constructing the Engine.
type StaticUser string

// Name implements UserInfo.
func (s StaticUser) Name() string { return string(s) }

// MrValidatorFunc adapts a plain function to MrValidator, the
// http.HandlerFunc idiom: most embedding programs' MR validation is one
// call out to an external program and nothing more.
type MrValidatorFunc func(program string, mrs []string) error

// Validate implements MrValidator.
func (f MrValidatorFunc) Validate(program string, mrs []string) error {
	return f(program, mrs)
}
