package openai

import (
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("KBCHAT_TEST_KEY", "")
	_, err := New(Config{APIKeyEnv: "KBCHAT_TEST_KEY"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KBCHAT_TEST_KEY")
}

func TestNewAppliesDefaultsAndTimeout(t *testing.T) {
	t.Setenv("KBCHAT_TEST_KEY", "sk-test")
	c, err := New(Config{
		APIKeyEnv: "KBCHAT_TEST_KEY",
		BaseURL:   "http://localhost:9",
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())
	assert.Equal(t, "text-embedding-3-small", c.embedModel)
	assert.Equal(t, "gpt-4o-mini", c.chatModel)
	assert.Equal(t, 5, c.maxRetries)
}

func TestRetryDelayBackoffIsCapped(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 400*time.Millisecond, retryDelay(1))
	assert.Equal(t, 5*time.Second, retryDelay(10))
	assert.Equal(t, 200*time.Millisecond, retryDelay(-3))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&openai.APIError{HTTPStatusCode: 429}))
	assert.True(t, retryable(&openai.APIError{HTTPStatusCode: 503}))
	assert.False(t, retryable(&openai.APIError{HTTPStatusCode: 400}))
	assert.True(t, retryable(errors.New("connection reset")))
}
