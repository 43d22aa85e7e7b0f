package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/claude-flow/internal/models"
)

func TestSuccessEnvelope(t *testing.T) {
	var buf bytes.Buffer
	err := PrintWith(Config{Writer: &buf}, Success(map[string]string{"id": "task_1"}))
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "v1", resp.SchemaVersion)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.ErrorCode)
}

func TestErrorEnvelopeEnrichesCoordError(t *testing.T) {
	resp := Error(&models.CircuitOpenError{AgentID: "a1", Failures: 3})

	assert.False(t, resp.Success)
	assert.Equal(t, "circuit-open", resp.ErrorCode)
	assert.Equal(t, "a1", resp.ErrorContext["agent_id"])
	assert.NotEmpty(t, resp.SuggestedAction)
}

func TestErrorEnvelopePlainError(t *testing.T) {
	resp := Error(assert.AnError)

	assert.False(t, resp.Success)
	assert.Empty(t, resp.ErrorCode)
	assert.Equal(t, assert.AnError.Error(), resp.Error)
}

func TestPrettyPrinting(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintWith(Config{Writer: &buf, Pretty: true}, Success(nil)))
	assert.Contains(t, buf.String(), "\n  \"schema_version\"")
}
