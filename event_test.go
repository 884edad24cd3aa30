package dialogue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefineEvent_RejectsEmptyName(t *testing.T) {
	req := require.New(t)

	_, err := DefineEvent("")
	req.Error(err)

	var derr *Error
	req.ErrorAs(err, &derr)
	req.Equal(KindConfig, derr.Kind)
}

func TestDefineEvent_RejectsInvalidHistoryLimit(t *testing.T) {
	req := require.New(t)

	_, err := DefineEvent("message.sent", WithHistory(0))
	req.Error(err)
}

func TestIsEventAllowed_EmptyAllowListAcceptsAnything(t *testing.T) {
	req := require.New(t)
	req.True(isEventAllowed("anything", nil))
}

func TestIsEventAllowed_ExactNameOrWildcard(t *testing.T) {
	req := require.New(t)

	chat := MustDefineEvent("chat.message")
	list := []EventDefinition{chat}

	req.True(isEventAllowed("chat.message", list))
	req.False(isEventAllowed("chat.typing", list))

	wildcard := MustDefineEvent(wildcardEvent)
	req.True(isEventAllowed("anything.at.all", []EventDefinition{wildcard}))
}

type pingPayload struct {
	Value int `json:"value" validate:"gte=0"`
}

type stubValidator struct {
	issues []ValidationIssue
}

func (s stubValidator) Validate(value interface{}) (interface{}, []ValidationIssue) {
	if len(s.issues) > 0 {
		return nil, s.issues
	}
	return value, nil
}

func TestValidateEventData_NoValidatorPassesThrough(t *testing.T) {
	req := require.New(t)

	def := MustDefineEvent("chat.message")
	coerced, err := validateEventData(def, "hello")
	req.NoError(err)
	req.Equal("hello", coerced)
}

func TestValidateEventData_ReportsJoinedIssues(t *testing.T) {
	req := require.New(t)

	def := MustDefineEvent("chat.message", WithValidator(stubValidator{
		issues: []ValidationIssue{
			{Path: "text", Message: "required"},
			{Message: "too long"},
		},
	}))

	_, err := validateEventData(def, map[string]interface{}{})
	req.Error(err)
	req.Contains(err.Error(), "text: required")
	req.Contains(err.Error(), "too long")
}

func TestEventDefinition_HasHistory(t *testing.T) {
	req := require.New(t)

	def := MustDefineEvent("chat.message", WithHistory(50))
	enabled, limit := def.HasHistory()
	req.True(enabled)
	req.Equal(50, limit)

	bare := MustDefineEvent("chat.typing")
	enabled, _ = bare.HasHistory()
	req.False(enabled)
}
