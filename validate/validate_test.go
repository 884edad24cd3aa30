package validate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type chatMessage struct {
	Text   string `json:"text" validate:"required"`
	Length int    `json:"length" validate:"gte=0"`
}

func TestStructValidator_PassesThroughValidPayload(t *testing.T) {
	req := require.New(t)

	v := For[chatMessage]()
	coerced, issues := v.Validate(map[string]interface{}{"text": "hi", "length": 2})

	req.Empty(issues)
	msg, ok := coerced.(*chatMessage)
	req.True(ok)
	req.Equal("hi", msg.Text)
}

func TestStructValidator_ReportsFieldIssues(t *testing.T) {
	req := require.New(t)

	v := For[chatMessage]()
	coerced, issues := v.Validate(map[string]interface{}{"length": -1})

	req.Nil(coerced)
	req.NotEmpty(issues)

	var sawText bool
	for _, issue := range issues {
		if issue.Path == "Text" {
			sawText = true
		}
	}
	req.True(sawText)
}
