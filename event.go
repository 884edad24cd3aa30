package dialogue

import (
	"fmt"
	"strings"
)

// wildcardEvent is the sentinel meaning "all events" in an allow-list or a
// subscription set. It is exposed on the wire as "*" for client compatibility.
const wildcardEvent = "*"

// ValidationIssue is one field-level failure reported by a Validator.
type ValidationIssue struct {
	Path    string
	Message string
}

// Validator is the capability an EventDefinition may carry. It is given an
// arbitrary decoded JSON value and either returns a coerced typed value with
// no issues, or a non-empty list of issues describing why the value failed.
// The core never depends on a concrete validation library, only on this
// interface; see package validate for the shipped go-playground/validator
// adapter.
type Validator interface {
	Validate(value interface{}) (coerced interface{}, issues []ValidationIssue)
}

// HistoryPolicy controls whether triggered events of a given name are
// retained in the bounded in-memory history and, if so, how many.
type HistoryPolicy struct {
	Enabled bool
	Limit   int
}

// EventDefinition is an immutable descriptor created once at startup via
// DefineEvent and frozen thereafter. Rooms hold an ordered allow-list of
// these; an empty allow-list or one containing a "*" definition means every
// event name is accepted.
type EventDefinition struct {
	name      string
	validator Validator
	history   *HistoryPolicy
}

// EventOption configures a new EventDefinition.
type EventOption func(*EventDefinition)

// WithValidator attaches a Validator capability to the definition.
func WithValidator(v Validator) EventOption {
	return func(d *EventDefinition) { d.validator = v }
}

// WithHistory enables bounded history retention for this event with the
// given limit, which must be >= 1.
func WithHistory(limit int) EventOption {
	return func(d *EventDefinition) { d.history = &HistoryPolicy{Enabled: true, Limit: limit} }
}

// DefineEvent constructs an immutable EventDefinition. It returns a
// ConfigError-kind error if name is empty or a history limit below 1 was
// requested.
func DefineEvent(name string, opts ...EventOption) (EventDefinition, error) {
	if name == "" {
		return EventDefinition{}, newError(KindConfig, "event name must not be empty")
	}

	def := EventDefinition{name: name}
	for _, opt := range opts {
		opt(&def)
	}

	if def.history != nil && def.history.Limit < 1 {
		return EventDefinition{}, newError(KindConfig, "event %q: history limit must be >= 1, got %d", name, def.history.Limit)
	}

	return def, nil
}

// MustDefineEvent is DefineEvent but panics on error, for static startup
// declarations where a ConfigError should abort the process immediately.
func MustDefineEvent(name string, opts ...EventOption) EventDefinition {
	def, err := DefineEvent(name, opts...)
	if err != nil {
		panic(err)
	}
	return def
}

// Name returns the event's name.
func (d EventDefinition) Name() string { return d.name }

// HasHistory reports whether this event retains history and, if so, its
// configured limit.
func (d EventDefinition) HasHistory() (enabled bool, limit int) {
	if d.history == nil {
		return false, 0
	}
	return d.history.Enabled, d.history.Limit
}

// validateEventData runs the definition's Validator, if any, against value.
// With no validator configured it passes the value through unchanged. On
// failure it joins every issue into one human-readable message of the form
// "Event '<name>' validation failed: <path>: <issue>[, …]".
func validateEventData(def EventDefinition, value interface{}) (interface{}, error) {
	if def.validator == nil {
		return value, nil
	}

	coerced, issues := def.validator.Validate(value)
	if len(issues) == 0 {
		return coerced, nil
	}

	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		if issue.Path == "" {
			parts = append(parts, issue.Message)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Path, issue.Message))
	}

	return nil, newError(KindValidationFailure, "Event '%s' validation failed: %s", def.name, strings.Join(parts, ", "))
}

// isEventAllowed implements the room allow-list rule: every name is allowed
// when the list is empty, or when it contains an entry matching name
// exactly, or when it contains a wildcard entry.
func isEventAllowed(name string, list []EventDefinition) bool {
	if len(list) == 0 {
		return true
	}

	for _, def := range list {
		if def.name == name || def.name == wildcardEvent {
			return true
		}
	}

	return false
}

// findEventDefinition returns the allow-list entry matching name, if any.
func findEventDefinition(name string, list []EventDefinition) (EventDefinition, bool) {
	for _, def := range list {
		if def.name == name {
			return def, true
		}
	}
	return EventDefinition{}, false
}
