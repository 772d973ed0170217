package audit

import (
	"github.com/rs/zerolog"
)

// OptionalEvent builds a nested dictionary that is only added to its parent
// when at least one field was set. Zero values are skipped.
type OptionalEvent struct {
	ev       *zerolog.Event
	modified bool
}

func NewOptionalEvent(e *zerolog.Event) *OptionalEvent {
	return &OptionalEvent{ev: e}
}

func (oe *OptionalEvent) event() *zerolog.Event {
	if oe.ev == nil {
		oe.ev = zerolog.Dict()
		oe.modified = false
	}
	return oe.ev
}

// Set adds the dictionary to parent under key if it has any fields, and
// reports whether it did.
func (oe *OptionalEvent) Set(parent *zerolog.Event, key string) bool {
	if oe.modified {
		parent.Dict(key, oe.event())
		return true
	}
	return false
}

// Event returns the underlying event for fields that should always be
// written. The dictionary is considered modified.
func (oe *OptionalEvent) Event() *zerolog.Event {
	e := oe.event()
	oe.modified = true
	return e
}

func (oe *OptionalEvent) Str(key, val string) *OptionalEvent {
	if val == "" {
		return oe
	}
	oe.event().Str(key, val)
	oe.modified = true
	return oe
}

func (oe *OptionalEvent) Bool(key string, val bool) *OptionalEvent {
	oe.event().Bool(key, val)
	oe.modified = true
	return oe
}

func (oe *OptionalEvent) Int(key string, val int) *OptionalEvent {
	if val == 0 {
		return oe
	}
	oe.event().Int(key, val)
	oe.modified = true
	return oe
}

func (oe *OptionalEvent) Int64(key string, val int64) *OptionalEvent {
	if val == 0 {
		return oe
	}
	oe.event().Int64(key, val)
	oe.modified = true
	return oe
}
