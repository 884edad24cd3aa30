// Package validate adapts github.com/go-playground/validator/v10 to the
// dialogue.Validator capability, the way the chat-lab teacher's
// auth/validator.go wraps a package-level validator.New() around a typed
// request struct and its "validate" struct tags.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/Hussseinkizz/dialogue"
)

var validate = validator.New()

// StructValidator validates an arbitrary decoded-JSON value against T's
// "validate" struct tags, coercing it into a *T on success. T is expected
// to be a struct type; the payload is round-tripped through JSON to
// perform the coercion, since the core only ever hands EventDefinition a
// bare interface{}.
type StructValidator[T any] struct{}

// For constructs a Validator checking payloads against T.
func For[T any]() StructValidator[T] {
	return StructValidator[T]{}
}

// Validate implements dialogue.Validator.
func (StructValidator[T]) Validate(value interface{}) (interface{}, []dialogue.ValidationIssue) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, []dialogue.ValidationIssue{{Message: fmt.Sprintf("could not encode payload: %s", err)}}
	}

	var target T
	if err := json.Unmarshal(raw, &target); err != nil {
		return nil, []dialogue.ValidationIssue{{Message: fmt.Sprintf("could not decode payload: %s", err)}}
	}

	if err := validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			issues := make([]dialogue.ValidationIssue, 0, len(verrs))
			for _, fe := range verrs {
				issues = append(issues, dialogue.ValidationIssue{Path: fe.Field(), Message: fe.Tag()})
			}
			return nil, issues
		}
		return nil, []dialogue.ValidationIssue{{Message: err.Error()}}
	}

	return &target, nil
}
