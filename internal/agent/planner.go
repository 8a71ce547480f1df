// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package agent

import (
	"context"
	"fmt"
	"strings"
)

const plannerRetries = 1

// ConnectionHint is the final answer the planner gives once the conversation
// service could not be reached.
const ConnectionHint = "Unable to process the query due to Genie connection issues. " +
	"Please verify your DATABRICKS_HOST, DATABRICKS_TOKEN, and GENIE_SPACE_ID configuration."

// Planner is a deterministic LLM used when no model endpoint is configured.
// It sends the question to the conversation tool and answers with what comes
// back. A call that failed with an "Error: " observation is repeated once,
// budget permitting; a second failure ends the run with an error.
type Planner struct {
	// Tool is the tool the planner acts with. Defaults to genie_query.
	Tool string
}

func (p Planner) Complete(_ context.Context, req Request) (string, error) {
	tool := p.Tool
	if tool == "" {
		tool = GenieToolName
	}
	if len(req.Steps) == 0 {
		return fmt.Sprintf("I need to use the %s tool to answer this business question: %s\n\nAction: %s\nAction Input: %s",
			tool, req.Question, tool, req.Question), nil
	}
	last := req.Steps[len(req.Steps)-1].Observation
	if strings.Contains(last.Text, "Failed to start conversation with Genie") {
		return "I am unable to connect to the Genie service at the moment.\n\nFinal Answer: " + ConnectionHint, nil
	}
	if last.IsError && strings.HasPrefix(last.Text, toolErrorPrefix) {
		if failedCalls(req.Steps) > plannerRetries {
			return "", fmt.Errorf("%s failed after %d attempts: %s", tool, plannerRetries+1, strings.TrimPrefix(last.Text, toolErrorPrefix))
		}
		return fmt.Sprintf("The previous attempt failed, trying once more.\n\nAction: %s\nAction Input: %s", tool, req.Question), nil
	}
	return "I now know the final answer.\n\nFinal Answer: " + last.Text, nil
}

func failedCalls(steps []Step) int {
	n := 0
	for _, s := range steps {
		if toolFailed(s) {
			n++
		}
	}
	return n
}
