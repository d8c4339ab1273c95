package chat

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short message", "Hello", "Hello..."},
		{"exactly thirty", strings.Repeat("a", 30), strings.Repeat("a", 30) + "..."},
		{"long message is cut", strings.Repeat("b", 45), strings.Repeat("b", 30) + "..."},
		{"multibyte runes", strings.Repeat("é", 31), strings.Repeat("é", 30) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveTitle(tt.content)
			assert.Equal(t, tt.want, got)
			assert.NotEqual(t, DefaultTitle, got)
		})
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("user")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, role)

	role, err = ParseRole("assistant")
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, role)

	_, err = ParseRole("model")
	assert.Error(t, err)
}

func TestNewPlaceholder(t *testing.T) {
	now := time.Now()
	p := NewPlaceholder(now)

	assert.True(t, p.IsPending())
	assert.Equal(t, PendingContent, p.Content)
	assert.Equal(t, RoleAssistant, p.Role)
	assert.NotEqual(t, NewPlaceholder(now).Id, p.Id)
}

func TestConversationCloneIsIndependent(t *testing.T) {
	c := Conversation{Title: DefaultTitle, Messages: []Message{{Content: "a"}}}
	clone := c.Clone()
	clone.Messages[0].Content = "b"

	assert.Equal(t, "a", c.Messages[0].Content)
	assert.True(t, c.HasDefaultTitle())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")

	var perr *ProviderError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", &ProviderError{Op: "respond", Err: cause}), &perr))
	assert.ErrorIs(t, perr, cause)

	var serr *PersistenceError
	assert.True(t, errors.As(&PersistenceError{Op: "append", Err: cause}, &serr))
	assert.ErrorIs(t, serr, cause)

	assert.Equal(t, "invalid credentials", NewAuthError("invalid credentials").Error())
}
