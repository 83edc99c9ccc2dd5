package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseTarget verifies "[user@]hostname[:port]" parsing, including
// IPv6 literals and the rejection of malformed inputs.
func TestParseTarget(t *testing.T) {
	tests := []struct {
		input    string
		expected Target
		hasError bool
	}{
		{"example.com", Target{Host: "example.com"}, false},
		{"ubuntu@10.0.0.5", Target{User: "ubuntu", Host: "10.0.0.5"}, false},
		{"deploy@web-1:2222", Target{User: "deploy", Host: "web-1", Port: 2222}, false},
		{"fe80::1", Target{Host: "fe80::1"}, false},
		{"root@fe80::1", Target{User: "root", Host: "fe80::1"}, false},
		{"", Target{}, true},
		{"@host", Target{}, true},
		{"user@", Target{}, true},
		{"user@host:0", Target{}, true},
		{"user@host:http", Target{}, true},
		{"bad host", Target{}, true},
		{"host;rm -rf /", Target{}, true},
		{"-oProxyCommand=x", Target{}, true},
		{"a@b@c", Target{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseTarget(tt.input)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// TestTarget_String checks that String round-trips through ParseTarget.
func TestTarget_String(t *testing.T) {
	for _, s := range []string{"example.com", "ubuntu@10.0.0.5", "deploy@web-1:2222"} {
		target, err := ParseTarget(s)
		require.NoError(t, err)
		assert.Equal(t, s, target.String())
	}
}

func TestTarget_Login(t *testing.T) {
	assert.Equal(t, "host", Target{Host: "host", Port: 22}.Login())
	assert.Equal(t, "root@host", Target{User: "root", Host: "host", Port: 22}.Login())
}

func TestRunOptions_Debug(t *testing.T) {
	assert.False(t, RunOptions{}.Debug())
	assert.True(t, RunOptions{Verbosity: 1}.Debug())
	assert.True(t, RunOptions{Verbosity: 3}.Debug())
}

// TestCLIError verifies the custom error type used for exit code mapping.
func TestCLIError(t *testing.T) {
	t.Run("simple error", func(t *testing.T) {
		err := NewCLIError(ExitSyncFailed, "rsync failed")
		assert.Equal(t, ExitSyncFailed, err.Code)
		assert.Equal(t, "rsync failed", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("wrapped error", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := WrapCLIError(ExitVersionMismatch, "version probe failed", inner)
		assert.Equal(t, ExitVersionMismatch, err.Code)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, inner, err.Unwrap())
	})

	// Verify errors.Is works with unwrapped errors (Go 1.13+ error chain).
	t.Run("errors.Is chain", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := WrapCLIError(ExitRunFailed, "chef-solo failed", inner)
		assert.True(t, errors.Is(err, inner))
	})
}
