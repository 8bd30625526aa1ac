package router

import (
	"strings"
)

// registry is an immutable snapshot of the installed commands. A new one is
// built on every SetRegistry, so readers only need the manager's lock to
// fetch the pointer.
type registry struct {
	cmds     []*Command          // registration order
	byName   map[string]*Command // names and aliases, lower case
	sections []string            // first-seen order
}

const defaultSection = "General"

func newRegistry(cmds []Command) *registry {
	r := &registry{byName: map[string]*Command{}}
	seen := map[string]bool{}
	for i := range cmds {
		c := cmds[i]
		c.Name = sanitizeCommand(c.Name)
		if c.Name == "" || c.Handle == nil {
			continue
		}
		if _, dup := r.byName[c.Name]; dup {
			continue
		}
		if strings.TrimSpace(c.Section) == "" {
			c.Section = defaultSection
		}
		cp := &c
		r.cmds = append(r.cmds, cp)
		r.byName[c.Name] = cp
		if !seen[c.Section] {
			seen[c.Section] = true
			r.sections = append(r.sections, c.Section)
		}
	}
	// aliases never shadow a real command name
	for _, c := range r.cmds {
		for _, a := range c.Aliases {
			a = sanitizeCommand(a)
			if a == "" {
				continue
			}
			if _, taken := r.byName[a]; !taken {
				r.byName[a] = c
			}
		}
	}
	return r
}

// lookup resolves a command word as typed, e.g. "/CD@campbot".
func (r *registry) lookup(word string) (*Command, bool) {
	word = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(word), "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	c, ok := r.byName[word]
	return c, ok
}

func (r *registry) section(name string) []*Command {
	var out []*Command
	for _, c := range r.cmds {
		if c.Section == name {
			out = append(out, c)
		}
	}
	return out
}
