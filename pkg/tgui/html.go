package tgui

import (
	"fmt"
	"html"
	"strings"
)

// H is HTML that is safe to send with ParseMode="HTML".
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML.
func Esc(s string) H { return H(html.EscapeString(s)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func I(s string) H    { return wrap("i", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }

// Bold wraps already safe HTML.
func Bold(h H) H { return wrap("b", h) }

// Mention links to a user id. An empty name renders as "user <id>".
func Mention(name string, userID int64) H {
	if name == "" {
		name = fmt.Sprintf("user %d", userID)
	}
	return H(fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, html.EscapeString(name)))
}

// Join joins parts with sep, skipping blank ones.
func Join(sep string, parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.String()) == "" {
			continue
		}
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, sep))
}

// Lines joins parts with newlines.
func Lines(parts ...H) H { return Join("\n", parts...) }

// Textf formats plain text and escapes the result.
func Textf(format string, args ...any) H { return Esc(fmt.Sprintf(format, args...)) }
