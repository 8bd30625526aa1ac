package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"campbot/internal/countdown"
	"campbot/pkg/tgui"

	"github.com/dustin/go-humanize"
)

const clockFormat = "15:04:05"

type renderer struct {
	loc *time.Location
}

func (r renderer) clock(t time.Time) string { return t.In(r.loc).Format(clockFormat) }

// rel renders t relative to now, e.g. "3 minutes from now".
func rel(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

// left renders a remaining duration, e.g. "3 minutes".
func left(d time.Duration, now time.Time) string {
	if d < time.Second {
		return "no time"
	}
	return strings.TrimSpace(humanize.RelTime(now, now.Add(d), "", ""))
}

func mention(id int64) tgui.H { return tgui.Mention("", id) }

func idLine(e countdown.Entry) tgui.H { return "ID: " + tgui.Code(e.ID) }

func (r renderer) countdownStarted(e countdown.Entry, now time.Time) string {
	return tgui.Lines(
		"⏲️ "+tgui.B("Countdown started!"),
		tgui.Textf("Ends %s, at %s", rel(e.EndAt, now), r.clock(e.EndAt)),
		idLine(e),
	).String()
}

func (r renderer) travelStarted(e countdown.Entry, g countdown.GroupView, now time.Time) string {
	lines := []tgui.H{"🧭 " + tgui.B("Travel booked for "+e.Affinity)}
	if e.StartAt.After(now) {
		lines = append(lines, tgui.Textf("Departs %s, at %s", rel(e.StartAt, now), r.clock(e.StartAt)))
	} else {
		lines = append(lines, "Departed now")
	}
	lines = append(lines, tgui.Textf("Arrives %s, at %s", rel(e.EndAt, now), r.clock(e.EndAt)))
	if len(g.Parties) > 1 {
		lines = append(lines, tgui.Esc("Sharing the window with "+strings.Join(others(g.Parties, e.Affinity), ", ")))
	} else {
		lines = append(lines, "Waiting for other teams on this window.")
	}
	lines = append(lines, idLine(e))
	return tgui.Lines(lines...).String()
}

func others(parties []string, self string) []string {
	out := make([]string, 0, len(parties))
	for _, p := range parties {
		if !strings.EqualFold(p, self) {
			out = append(out, p)
		}
	}
	return out
}

// notice renders a countdown notice; mentions goes on the first line.
func (r renderer) notice(n countdown.Notice, mentions tgui.H, now time.Time) string {
	e := n.Entry
	var lines []tgui.H
	switch n.Kind {
	case countdown.NoticeCompleted:
		title := "✅ " + tgui.B("Countdown complete!")
		if e.Kind == countdown.KindTravel {
			title = "✅ " + tgui.B(e.Affinity+" arrived!")
		}
		lines = []tgui.H{title, tgui.Textf("Ended %s, at %s", rel(e.EndAt, now), r.clock(e.EndAt))}
		if n.Late {
			lines = append(lines, tgui.I("Delivered late after a restart."))
		}
	case countdown.NoticeDeparted:
		lines = []tgui.H{
			"🚶 " + tgui.B(e.Affinity+" departed!"),
			tgui.Textf("Arrives %s, at %s", rel(e.EndAt, now), r.clock(e.EndAt)),
		}
	case countdown.NoticeSpaceReady:
		lines = []tgui.H{
			"🏕️ " + tgui.B("Shared window: "+strings.Join(n.Parties, " + ")),
			tgui.Textf("Departs %s, arrives %s", r.clock(e.StartAt), r.clock(e.EndAt)),
			"Coordinate here. This topic closes when the last team arrives.",
		}
	default:
		return ""
	}
	lines = append([]tgui.H{mentions}, append(lines, idLine(e))...)
	return tgui.Lines(lines...).String()
}

func (r renderer) list(entries []countdown.Entry, now time.Time) string {
	if len(entries) == 0 {
		return "No active countdowns."
	}
	lines := []tgui.H{"⏳ " + tgui.B(fmt.Sprintf("Active countdowns (%d)", len(entries)))}
	for _, e := range entries {
		what := "countdown"
		if e.Kind == countdown.KindTravel {
			what = "travel " + e.Affinity
		}
		lines = append(lines, "• "+tgui.Code(e.ID)+" "+
			tgui.Textf("%s, %s left (ends %s)", what, left(e.Remaining(now), now), r.clock(e.EndAt)))
	}
	return tgui.Lines(lines...).String()
}

// rejection turns a scheduler error into a reply. ok is false for errors that
// are not the requester's fault.
func rejection(err error) (string, bool) {
	var rej *countdown.Rejection
	switch {
	case errors.As(err, &rej) && errors.Is(err, countdown.ErrThrottled):
		return tgui.Lines("⚠️ "+tgui.B("Slow down."), tgui.Esc(rej.Reason)).String(), true
	case errors.As(err, &rej):
		return invalidReply(rej.Reason), true
	case errors.Is(err, countdown.ErrNotReady):
		return "⏳ Still starting up, try again in a moment.", true
	default:
		return "❌ Something went wrong, nothing was changed. Try again later.", false
	}
}

func invalidReply(reason string) string {
	return tgui.Lines("⚠️ "+tgui.B("Invalid request"), tgui.Esc(reason)).String()
}

func (r renderer) cancelled(res countdown.CancelResult, what string, now time.Time) string {
	var h tgui.H
	switch res.Outcome {
	case countdown.Cancelled:
		h = "✅ " + tgui.B("Cancelled "+what) + " " + tgui.Code(res.Entry.ID) + "."
	case countdown.NotFound:
		h = tgui.Lines("❓ "+tgui.B(capitalize(what)+" not found"),
			"Nothing with that ID is active. Please double-check the ID.")
	case countdown.Forbidden:
		h = tgui.Lines("⛔ "+tgui.B("You don't have permission"), "Only owners can cancel by ID.")
	case countdown.GraceExpired:
		h = tgui.Lines("⌛ "+tgui.B("Too late to cancel"),
			tgui.Code(res.Entry.ID)+tgui.Textf(" was booked %s; self-service cancel is only possible for a few minutes.", rel(res.Entry.CreatedAt, now)))
	default:
		h = tgui.Esc(res.Outcome.String())
	}
	return h.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
