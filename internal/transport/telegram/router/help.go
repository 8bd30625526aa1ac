package router

import (
	"strings"

	"campbot/pkg/tgui"
)

// helpText renders /help in HTML parse mode: the command list by section, or
// the details of one command when args names it.
func (r *registry) helpText(args []string) string {
	if len(args) == 0 {
		return r.helpIndex()
	}
	c, ok := r.lookup(args[0])
	if !ok {
		return tgui.Lines(
			"❓ "+tgui.B("Unknown command"),
			"Send "+tgui.Code("/help")+" for the command list.",
		).String()
	}
	return helpCommand(c)
}

func (r *registry) helpIndex() string {
	lines := []tgui.H{
		"📚 " + tgui.B("Commands"),
		"Send " + tgui.Code("/help <command>") + " for details.",
	}
	for _, sec := range r.sections {
		lines = append(lines, tgui.B(sec))
		for _, c := range r.section(sec) {
			if c.Hidden {
				continue
			}
			row := "• " + tgui.Code("/"+c.Name)
			if c.Access == AccessOwnerOnly {
				row = "• 🔒 " + tgui.Code("/"+c.Name)
			}
			if d := strings.TrimSpace(c.Description); d != "" {
				row += " " + tgui.Esc("- "+d)
			}
			lines = append(lines, row)
		}
	}
	return tgui.Lines(lines...).String()
}

func helpCommand(c *Command) string {
	lines := []tgui.H{"📚 " + tgui.B("Help") + " " + tgui.Code("/"+c.Name)}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, tgui.Esc(d))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, "🔒 "+tgui.I("Owners only"))
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, tgui.B("Usage")+" "+tgui.Code(u))
	}
	var aliases []string
	for _, a := range c.Aliases {
		if a = sanitizeCommand(a); a != "" && a != c.Name {
			aliases = append(aliases, "/"+a)
		}
	}
	if len(aliases) > 0 {
		lines = append(lines, tgui.B("Also")+" "+tgui.Code(strings.Join(aliases, " ")))
	}
	return tgui.Lines(lines...).String()
}
