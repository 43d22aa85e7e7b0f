// Package verify is the verification pipeline: it runs each agent's
// declared verification commands through the injected subprocess runner,
// maintains the agent's status document, and gates task and objective
// completion on the outcome. The verifier depends only on the runner and a
// writable status-document directory.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dotcommander/claude-flow/internal/models"
	"github.com/dotcommander/claude-flow/internal/runner"
)

// Requirement declares what an agent must prove before its work is
// accepted.
type Requirement struct {
	AgentID    string
	Commands   []models.VerificationCommand
	WorkingDir string
	Env        map[string]string
}

// Config tunes the verifier.
type Config struct {
	// StatusDir holds the per-agent status documents.
	StatusDir string
	// FailFast stops executing after a failing critical command.
	FailFast bool
	// DefaultTimeout applies to commands that declare none.
	DefaultTimeout time.Duration
}

// DefaultConfig uses the conventional status directory.
func DefaultConfig() Config {
	return Config{
		StatusDir:      DefaultStatusDir,
		FailFast:       true,
		DefaultTimeout: 2 * time.Minute,
	}
}

// Verifier executes verification requirements.
type Verifier struct {
	cfg Config
	run runner.Runner
}

// New returns a verifier executing commands through run.
func New(cfg Config, run runner.Runner) *Verifier {
	if cfg.StatusDir == "" {
		cfg.StatusDir = DefaultStatusDir
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	return &Verifier{cfg: cfg, run: run}
}

// StatusPath returns where the agent's status document lives.
func (v *Verifier) StatusPath(agentID string) string {
	return StatusPath(v.cfg.StatusDir, agentID)
}

// EnforceAgent runs the requirement's commands and updates the agent's
// status document. It returns all observed results; the error is an
// *EnforcementError when any command missed its expectation.
func (v *Verifier) EnforceAgent(ctx context.Context, req Requirement) ([]models.VerificationResult, error) {
	commands := make([]string, len(req.Commands))
	for i, c := range req.Commands {
		commands[i] = c.Command
	}

	// Seed the document before running anything so a crash mid-run leaves
	// an inspectable, failing document rather than none.
	doc := models.StatusDocument{
		Timestamp:            time.Now(),
		VerificationCommands: commands,
	}
	path := v.StatusPath(req.AgentID)
	if err := writeStatusDoc(path, doc); err != nil {
		return nil, err
	}

	var results []models.VerificationResult
	var failing []models.VerificationResult
	for _, cmd := range req.Commands {
		result := v.execute(ctx, cmd, req)
		results = append(results, result)
		if !result.MatchesExpectation {
			failing = append(failing, result)
			if cmd.Critical && v.cfg.FailFast {
				slog.Warn("critical verification command failed, stopping",
					"agent_id", req.AgentID, "command", cmd.Command)
				break
			}
		}
	}

	doc.Ok = len(failing) == 0
	doc.Errors = len(failing)
	doc.Timestamp = time.Now()
	for _, f := range failing {
		doc.ErrorDetails = append(doc.ErrorDetails, fmt.Sprintf(
			"command %q exited %d: %s", f.Command, f.ExitCode, firstNonEmpty(f.Stderr, f.Stdout)))
	}
	if doc.Ok {
		doc.Details = fmt.Sprintf("%d command(s) verified", len(results))
	}
	if err := writeStatusDoc(path, doc); err != nil {
		return results, err
	}

	if len(failing) > 0 {
		return results, &EnforcementError{AgentID: req.AgentID, Failing: failing}
	}
	return results, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// execute runs one command. Timeouts and spawn failures yield a result
// with MatchesExpectation=false regardless of the declared expectation.
func (v *Verifier) execute(ctx context.Context, cmd models.VerificationCommand, req Requirement) models.VerificationResult {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = v.cfg.DefaultTimeout
	}
	shellReq := runner.Shell(cmd.Command)
	shellReq.Dir = req.WorkingDir
	shellReq.Env = req.Env
	shellReq.Timeout = timeout

	res, err := v.run.Run(ctx, shellReq)
	result := models.VerificationResult{
		Command:  cmd.Command,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: res.Duration,
	}
	if err != nil {
		if result.Stderr == "" {
			result.Stderr = err.Error()
		}
		return result
	}

	switch cmd.Expectation {
	case models.ExpectFailure:
		result.MatchesExpectation = res.ExitCode != 0
	default:
		result.MatchesExpectation = res.ExitCode == 0
	}
	return result
}

// CheckAgent re-validates an existing status document against the
// enforcement rules: the document exists and parses, ok=true and errors=0.
// The document's verification_commands are not compared against any
// declared command list, and no per-command results are checked.
func (v *Verifier) CheckAgent(agentID string) (models.StatusDocument, error) {
	path := v.StatusPath(agentID)
	data, err := os.ReadFile(path)
	if err != nil {
		return models.StatusDocument{}, &EnforcementError{AgentID: agentID, MissingDoc: true}
	}
	var doc models.StatusDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.StatusDocument{}, &EnforcementError{AgentID: agentID, MissingDoc: true}
	}
	if !doc.Passing() {
		return doc, &EnforcementError{AgentID: agentID}
	}
	return doc, nil
}

// ObjectiveReport aggregates per-agent enforcement over an objective.
type ObjectiveReport struct {
	ObjectiveID      string   `json:"objective_id"`
	TotalAgents      int      `json:"total_agents"`
	SuccessfulAgents int      `json:"successful_agents"`
	FailedAgents     []string `json:"failed_agents,omitempty"`
}

// Passed reports unanimous success.
func (r ObjectiveReport) Passed() bool {
	return r.SuccessfulAgents == r.TotalAgents
}

// EnforceObjective re-validates every unique participating agent's status
// document. Any failure fails the objective.
func (v *Verifier) EnforceObjective(objectiveID string, agentIDs []string) ObjectiveReport {
	report := ObjectiveReport{ObjectiveID: objectiveID}
	seen := make(map[string]bool)
	for _, agentID := range agentIDs {
		if agentID == "" || seen[agentID] {
			continue
		}
		seen[agentID] = true
		report.TotalAgents++
		if _, err := v.CheckAgent(agentID); err != nil {
			report.FailedAgents = append(report.FailedAgents, agentID)
			continue
		}
		report.SuccessfulAgents++
	}
	return report
}

// DefaultCommands returns the conventional verification set for an agent
// focus. Every focus beyond typescript layers onto the previous set.
func DefaultCommands(focus string) []models.VerificationCommand {
	typecheck := models.VerificationCommand{
		Command:     "npm run typecheck",
		Expectation: models.ExpectSuccess,
		Description: "type check must pass",
		Critical:    true,
	}
	test := models.VerificationCommand{
		Command:     "npm test",
		Expectation: models.ExpectSuccess,
		Description: "test suite must pass",
		Critical:    true,
	}
	build := models.VerificationCommand{
		Command:     "npm run build",
		Expectation: models.ExpectSuccess,
		Description: "build must succeed",
		Critical:    true,
	}
	spawnCount := models.VerificationCommand{
		Command:     `grep -rn "spawn(" --include="*.ts" . | wc -l`,
		Expectation: models.ExpectSuccess,
		Description: "count spawn sites",
		Critical:    false,
	}

	switch focus {
	case "typescript":
		return []models.VerificationCommand{typecheck}
	case "test":
		return []models.VerificationCommand{typecheck, test}
	case "build":
		return []models.VerificationCommand{typecheck, test, build}
	default:
		return []models.VerificationCommand{typecheck, test, build, spawnCount}
	}
}
