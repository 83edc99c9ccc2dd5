package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesSpansToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")

	tracer, shutdown, err := Setup("solo-cook", path)
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "Rsync kitchen")
	span.End()

	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Name":"Rsync kitchen"`)
	assert.Contains(t, string(data), "solo-cook")
}

func TestSetup_NoopWithoutFile(t *testing.T) {
	tracer, shutdown, err := Setup("solo-cook", "")
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "Cook")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_UnwritablePath(t *testing.T) {
	_, _, err := Setup("solo-cook", filepath.Join(t.TempDir(), "missing", "trace.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open trace file")
}
