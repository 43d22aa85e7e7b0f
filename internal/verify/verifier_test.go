package verify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/claude-flow/internal/models"
	"github.com/dotcommander/claude-flow/internal/runner"
)

// scriptedRunner maps command lines to canned results.
type scriptedRunner struct {
	results map[string]runner.Result
	errs    map[string]error
	calls   []string
}

func (s *scriptedRunner) Run(_ context.Context, req runner.Request) (runner.Result, error) {
	line := req.Args[len(req.Args)-1]
	s.calls = append(s.calls, line)
	if err, ok := s.errs[line]; ok {
		return runner.Result{ExitCode: -1, TimedOut: errors.Is(err, context.DeadlineExceeded)}, err
	}
	if res, ok := s.results[line]; ok {
		return res, nil
	}
	return runner.Result{ExitCode: 0}, nil
}

func newTestVerifier(t *testing.T, run runner.Runner) *Verifier {
	t.Helper()
	return New(Config{StatusDir: t.TempDir(), FailFast: true, DefaultTimeout: time.Minute}, run)
}

func readDoc(t *testing.T, path string) models.StatusDocument {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc models.StatusDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestEnforceAgentAllPassing(t *testing.T) {
	run := &scriptedRunner{results: map[string]runner.Result{
		"npm run typecheck": {ExitCode: 0, Stdout: "ok"},
	}}
	v := newTestVerifier(t, run)

	results, err := v.EnforceAgent(context.Background(), Requirement{
		AgentID:  "a1",
		Commands: []models.VerificationCommand{{Command: "npm run typecheck", Expectation: models.ExpectSuccess, Critical: true}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].MatchesExpectation)

	doc := readDoc(t, v.StatusPath("a1"))
	assert.True(t, doc.Ok)
	assert.Zero(t, doc.Errors)
	assert.Equal(t, []string{"npm run typecheck"}, doc.VerificationCommands)
	assert.False(t, doc.Timestamp.IsZero())
}

func TestEnforceAgentFailureUpdatesDocument(t *testing.T) {
	run := &scriptedRunner{results: map[string]runner.Result{
		"npm run typecheck": {ExitCode: 2, Stderr: "TS2345"},
	}}
	v := newTestVerifier(t, run)

	_, err := v.EnforceAgent(context.Background(), Requirement{
		AgentID:  "a1",
		Commands: []models.VerificationCommand{{Command: "npm run typecheck", Expectation: models.ExpectSuccess, Critical: true}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrVerificationFailed)

	var ee *EnforcementError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "a1", ee.AgentID)
	assert.False(t, ee.MissingDoc)
	assert.Equal(t, "verification-failed", ee.ErrorCode())

	doc := readDoc(t, v.StatusPath("a1"))
	assert.False(t, doc.Ok)
	assert.Equal(t, 1, doc.Errors)
	require.Len(t, doc.ErrorDetails, 1)
	assert.Contains(t, doc.ErrorDetails[0], "TS2345")
}

func TestEnforceAgentExpectFailure(t *testing.T) {
	run := &scriptedRunner{results: map[string]runner.Result{
		"grep -q TODO src": {ExitCode: 1},
	}}
	v := newTestVerifier(t, run)

	results, err := v.EnforceAgent(context.Background(), Requirement{
		AgentID:  "a1",
		Commands: []models.VerificationCommand{{Command: "grep -q TODO src", Expectation: models.ExpectFailure}},
	})
	require.NoError(t, err)
	assert.True(t, results[0].MatchesExpectation)
}

func TestEnforceAgentTimeoutNeverMatches(t *testing.T) {
	run := &scriptedRunner{errs: map[string]error{
		"sleep 100": context.DeadlineExceeded,
	}}
	v := newTestVerifier(t, run)

	// Even with expectation=failure, a timeout is not a match.
	results, err := v.EnforceAgent(context.Background(), Requirement{
		AgentID:  "a1",
		Commands: []models.VerificationCommand{{Command: "sleep 100", Expectation: models.ExpectFailure, Timeout: time.Millisecond}},
	})
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].MatchesExpectation)
}

func TestEnforceAgentFailFastSkipsRemaining(t *testing.T) {
	run := &scriptedRunner{results: map[string]runner.Result{
		"npm run typecheck": {ExitCode: 1},
		"npm test":          {ExitCode: 0},
	}}
	v := newTestVerifier(t, run)

	_, err := v.EnforceAgent(context.Background(), Requirement{
		AgentID: "a1",
		Commands: []models.VerificationCommand{
			{Command: "npm run typecheck", Expectation: models.ExpectSuccess, Critical: true},
			{Command: "npm test", Expectation: models.ExpectSuccess, Critical: true},
		},
	})
	require.Error(t, err)
	assert.Equal(t, []string{"npm run typecheck"}, run.calls)
}

func TestCheckAgentEnforcementRules(t *testing.T) {
	v := newTestVerifier(t, &scriptedRunner{})

	// Missing document.
	_, err := v.CheckAgent("ghost")
	require.Error(t, err)
	var ee *EnforcementError
	require.ErrorAs(t, err, &ee)
	assert.True(t, ee.MissingDoc)
	assert.Equal(t, "status-missing", ee.ErrorCode())
	assert.ErrorIs(t, err, models.ErrStatusMissing)

	// Malformed document.
	require.NoError(t, os.WriteFile(v.StatusPath("bad"), []byte("not json"), 0600))
	_, err = v.CheckAgent("bad")
	require.ErrorAs(t, err, &ee)
	assert.True(t, ee.MissingDoc)

	// ok=false fails.
	require.NoError(t, writeStatusDoc(v.StatusPath("failing"), models.StatusDocument{Ok: false, Errors: 1, Timestamp: time.Now()}))
	_, err = v.CheckAgent("failing")
	assert.ErrorIs(t, err, models.ErrVerificationFailed)

	// Passing document.
	require.NoError(t, writeStatusDoc(v.StatusPath("good"), models.StatusDocument{Ok: true, Errors: 0, Timestamp: time.Now()}))
	doc, err := v.CheckAgent("good")
	require.NoError(t, err)
	assert.True(t, doc.Passing())
}

func TestEnforceObjectiveAggregates(t *testing.T) {
	v := newTestVerifier(t, &scriptedRunner{})

	require.NoError(t, writeStatusDoc(v.StatusPath("a1"), models.StatusDocument{Ok: true, Timestamp: time.Now()}))
	require.NoError(t, writeStatusDoc(v.StatusPath("a2"), models.StatusDocument{Ok: false, Errors: 1, Timestamp: time.Now()}))

	// Duplicates collapse to unique agents.
	report := v.EnforceObjective("obj_1", []string{"a1", "a1", "a2"})
	assert.Equal(t, 2, report.TotalAgents)
	assert.Equal(t, 1, report.SuccessfulAgents)
	assert.Equal(t, []string{"a2"}, report.FailedAgents)
	assert.False(t, report.Passed())

	all := v.EnforceObjective("obj_2", []string{"a1"})
	assert.True(t, all.Passed())
}

func TestWaitForStatus(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "a1-status.json")
	absent := filepath.Join(dir, "a2-status.json")
	require.NoError(t, os.WriteFile(present, []byte("{}"), 0600))

	res := WaitForStatus([]string{present, absent}, 150*time.Millisecond)
	assert.True(t, res.TimedOut)
	assert.Equal(t, []string{present}, res.Found)
	assert.Equal(t, []string{absent}, res.Missing)

	res = WaitForStatus([]string{present}, time.Second)
	assert.False(t, res.TimedOut)
	assert.Empty(t, res.Missing)
}

func TestDefaultCommandsLayering(t *testing.T) {
	assert.Len(t, DefaultCommands("typescript"), 1)
	assert.Len(t, DefaultCommands("test"), 2)
	assert.Len(t, DefaultCommands("build"), 3)

	general := DefaultCommands("general")
	require.Len(t, general, 4)
	assert.False(t, general[3].Critical, "spawn-count command is advisory")
}

func TestStatusDocumentIsPrettyPrinted(t *testing.T) {
	v := newTestVerifier(t, &scriptedRunner{})

	_, err := v.EnforceAgent(context.Background(), Requirement{
		AgentID:  "a1",
		Commands: []models.VerificationCommand{{Command: "true", Expectation: models.ExpectSuccess}},
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(v.StatusPath("a1"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"ok\"", "document is indented for humans")
}
