package router

import (
	"strings"

	kit "campbot/internal/transport"
)

const (
	maxMenuCommands = 100
	maxCommandLen   = 32
	maxMenuDescLen  = 256
)

// sanitizeCommand maps a name or alias onto the bot command alphabet
// [a-z0-9_]{1,32}. Separators become one underscore and a leading digit
// gets a "cmd_" prefix.
//
//	"Cancel Travel" -> "cancel_travel"
//	"9lives"        -> "cmd_9lives"
func sanitizeCommand(s string) string {
	var b strings.Builder
	under := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			under = false
		case r == '_' || r == '-' || r == ' ' || r == '\t' || r == '/':
			if b.Len() > 0 && !under {
				b.WriteByte('_')
				under = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > maxCommandLen {
		out = strings.TrimRight(out[:maxCommandLen], "_")
	}
	return out
}

// menu lists visible commands section by section. Owner-only entries are
// marked so members know not to bother.
func (r *registry) menu() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(r.cmds))
	for _, sec := range r.sections {
		for _, c := range r.section(sec) {
			if c.Hidden {
				continue
			}
			desc := strings.Join(strings.Fields(c.Description), " ")
			if desc == "" {
				desc = c.Name
			}
			if c.Access == AccessOwnerOnly {
				desc = "🔒 " + desc
			}
			if len(desc) > maxMenuDescLen {
				desc = strings.ToValidUTF8(desc[:maxMenuDescLen], "")
			}
			out = append(out, kit.BotCommand{Command: c.Name, Description: desc})
			if len(out) == maxMenuCommands {
				return out
			}
		}
	}
	return out
}
