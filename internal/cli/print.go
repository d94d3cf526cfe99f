package cli

import (
	"fmt"
	"io"
	"strings"

	"streamchat/pkg/schema"
)

// PrintHistory writes a readable listing of messages.
func PrintHistory(w io.Writer, messages []schema.DisplayMessage) {
	if len(messages) == 0 {
		fmt.Fprintln(w, "  (no messages)")
		return
	}

	for _, m := range messages {
		marker := ""
		if m.Streaming {
			marker = " …"
		}
		fmt.Fprintf(w, "  [%s] %s: %s%s\n", m.ID, m.Role, truncate(oneLine(m.Content), 80), marker)

		for _, tc := range m.ToolCalls {
			fmt.Fprintf(w, "      tool %s (%s)\n", tc.Name, tc.Status)
		}
		if m.Proposal != nil {
			fmt.Fprintf(w, "      proposal: %s (%d changes)\n", truncate(m.Proposal.Summary, 60), len(m.Proposal.Changes))
		}
		if m.ResearchRequest != nil {
			fmt.Fprintf(w, "      research: %s\n", truncate(m.ResearchRequest.Query, 60))
		}
	}
}

func printToolCall(w io.Writer, tc schema.ToolCall) {
	switch tc.Status {
	case schema.ToolCallPending:
		fmt.Fprintf(w, "\n  [tool] %s ...\n", tc.Name)
	default:
		fmt.Fprintf(w, "  [tool] %s → %s\n", tc.Name, truncate(oneLine(fmt.Sprint(tc.Result)), 80))
	}
}

func printProposal(w io.Writer, p *schema.ModificationProposal) {
	if p == nil {
		return
	}
	fmt.Fprintf(w, "\n  [P] %s\n", p.Summary)
	for _, c := range p.Changes {
		fmt.Fprintf(w, "      %s: %s → %s\n", c.Target, truncate(oneLine(c.Before), 30), truncate(oneLine(c.After), 30))
	}
	if p.Rationale != "" {
		fmt.Fprintf(w, "      Reason: %s\n", truncate(p.Rationale, 80))
	}
}

func printResearchRequest(w io.Writer, r *schema.ResearchRequest) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "\n  [R] %s\n", r.Query)
	if r.Reason != "" {
		fmt.Fprintf(w, "      Reason: %s\n", truncate(r.Reason, 80))
	}
	if len(r.Sources) > 0 {
		fmt.Fprintf(w, "      Sources: %s\n", strings.Join(r.Sources, ", "))
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
