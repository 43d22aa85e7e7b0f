package verify

import (
	"fmt"
	"strconv"

	"github.com/dotcommander/claude-flow/internal/models"
)

// EnforcementError is the distinguished verification failure. It is never
// recovered inside the verifier; it propagates to the scheduler, which
// treats the affected task (or objective) as failed.
type EnforcementError struct {
	AgentID    string
	Failing    []models.VerificationResult
	MissingDoc bool
}

func (e *EnforcementError) Error() string {
	if e.MissingDoc {
		return fmt.Sprintf("verification failed for agent %s: status document missing or invalid", e.AgentID)
	}
	return fmt.Sprintf("verification failed for agent %s: %d command(s) did not match expectation", e.AgentID, len(e.Failing))
}

func (e *EnforcementError) ErrorCode() string {
	if e.MissingDoc {
		return "status-missing"
	}
	return "verification-failed"
}

func (e *EnforcementError) Context() map[string]string {
	ctx := map[string]string{
		"agent_id":    e.AgentID,
		"failing":     strconv.Itoa(len(e.Failing)),
		"missing_doc": strconv.FormatBool(e.MissingDoc),
	}
	for i, r := range e.Failing {
		ctx["command_"+strconv.Itoa(i)] = r.Command
	}
	return ctx
}

func (e *EnforcementError) SuggestedAction() string {
	if e.MissingDoc {
		return "ensure the agent writes its status document before claiming completion"
	}
	return "inspect the failing commands' output in the status document's error_details"
}

func (e *EnforcementError) Is(target error) bool {
	if e.MissingDoc && target == models.ErrStatusMissing {
		return true
	}
	return target == models.ErrVerificationFailed
}
