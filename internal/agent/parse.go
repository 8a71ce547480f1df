// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package agent

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	finalRe  = regexp.MustCompile(`(?s)Final Answer:\s*(.*)$`)
	actionRe = regexp.MustCompile(`(?s)Action\s*\d*\s*:\s*(.*?)\s*\n\s*Action\s*\d*\s*Input\s*\d*\s*:\s*(.*)`)
)

type parsed struct {
	ok     bool
	final  bool
	answer string
	action string
	input  string
}

// parse reads one model output. A final answer wins over an action when the
// output carries both.
func parse(out string) parsed {
	if m := finalRe.FindStringSubmatch(out); m != nil {
		return parsed{ok: true, final: true, answer: strings.TrimSpace(m[1])}
	}
	m := actionRe.FindStringSubmatch(out)
	if m == nil {
		return parsed{}
	}
	input := strings.TrimSpace(m[2])
	// Drop a hallucinated observation the model wrote itself.
	if i := strings.Index(input, "\nObservation:"); i >= 0 {
		input = strings.TrimSpace(input[:i])
	}
	input = strings.Trim(input, `"`)
	action := strings.TrimSpace(m[1])
	if action == "" {
		return parsed{}
	}
	return parsed{ok: true, action: action, input: input}
}

const promptTemplate = `You are a Business Intelligence Agent. Answer business questions using the available tools.

IMPORTANT: Be direct and efficient. Use only ONE tool per question unless absolutely necessary.

Process:
1. For business questions, use genie_query tool with the user's exact question
2. Return the result immediately - do not use additional tools unless the first tool fails
3. Only use enhance_response if specifically requested or if the response needs improvement

Respond with either:
Action: <tool name>
Action Input: <tool input>
or:
Final Answer: <answer>

Available tools: %s
Tool descriptions:
%s

User Question: %s

%s`

func (l *Loop) prompt(question string, steps []Step) string {
	var desc strings.Builder
	for _, t := range l.cfg.Tools {
		fmt.Fprintf(&desc, "%s: %s\n", t.Name(), strings.Join(strings.Fields(t.Description()), " "))
	}
	return fmt.Sprintf(promptTemplate, strings.Join(l.toolNames(), ", "), desc.String(), question, scratchpad(steps))
}

func scratchpad(steps []Step) string {
	var b strings.Builder
	for _, s := range steps {
		b.WriteString(strings.TrimSpace(s.Output))
		b.WriteString("\nObservation: ")
		b.WriteString(s.Observation.Text)
		b.WriteString("\nThought: ")
	}
	return b.String()
}
