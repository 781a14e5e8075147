package prompt

import (
	"fmt"
	"strings"

	"github.com/solenne/hearth/pkg/memory"
	"github.com/solenne/hearth/pkg/quotes"
	"github.com/solenne/hearth/pkg/upstream"
)

// RecentWindow is how many of the caller's incoming messages survive into
// the outbound prompt (and, elsewhere, into the cache fingerprint).
const RecentWindow = 5

// Compose assembles the exact ordered payload handed to the invoker:
//
//  1. one system message: systemPrompt with the quote set appended as a
//     bulleted reference list,
//  2. the session's prior memory turns, oldest first,
//  3. the caller's incoming messages with system roles stripped, truncated
//     to the most recent RecentWindow entries.
func Compose(systemPrompt string, quoteSet []quotes.Quote, history []memory.Turn, incoming []upstream.Message) []upstream.Message {
	out := make([]upstream.Message, 0, 1+len(history)+RecentWindow)
	out = append(out, upstream.Message{
		Role:    upstream.RoleSystem,
		Content: systemWithQuotes(systemPrompt, quoteSet),
	})

	for _, turn := range history {
		out = append(out, upstream.Message{Role: turn.Role, Content: turn.Content})
	}

	recent := make([]upstream.Message, 0, len(incoming))
	for _, msg := range incoming {
		if msg.Role == upstream.RoleSystem {
			continue
		}
		recent = append(recent, msg)
	}
	if len(recent) > RecentWindow {
		recent = recent[len(recent)-RecentWindow:]
	}

	return append(out, recent...)
}

func systemWithQuotes(systemPrompt string, quoteSet []quotes.Quote) string {
	if len(quoteSet) == 0 {
		return systemPrompt
	}

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nHelpful memories:\n")
	for i, q := range quoteSet {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "- (%s) %s", q.Type, q.Text)
	}
	return sb.String()
}
