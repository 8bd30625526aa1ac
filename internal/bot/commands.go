package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"campbot/internal/countdown"
	"campbot/internal/storage"
	"campbot/internal/teams"
	"campbot/internal/transport/telegram/router"
	"campbot/pkg/logx"
	"campbot/pkg/tgui"
)

// Core is the part of the countdown scheduler the chat commands drive.
type Core interface {
	CreateCountdown(ctx context.Context, req countdown.CountdownRequest) (countdown.Entry, error)
	CreateTravel(ctx context.Context, req countdown.TravelRequest) (countdown.Entry, countdown.GroupView, error)
	Cancel(ctx context.Context, req countdown.CancelRequest) (countdown.CancelResult, error)
	List(tenant int64) []countdown.Entry
}

// Teams resolves which team a chat member belongs to.
type Teams interface {
	ResolveGroupAffinity(tenant, user int64) (string, teams.Resolution, []string)
	Lookup(tenant int64, name string) (string, bool)
}

type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// Handlers turns chat commands into scheduler requests.
type Handlers struct {
	core   Core
	teams  Teams
	audit  Auditor
	log    logx.Logger
	render renderer
	now    func() time.Time
}

func NewHandlers(core Core, tm Teams, audit Auditor, loc *time.Location, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Handlers{core: core, teams: tm, audit: audit, log: log, render: renderer{loc: loc}, now: time.Now}
}

const commandTimeout = 15 * time.Second

// Commands is the registry handed to the router.
func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "countdown",
			Section:     "Countdowns",
			Aliases:     []string{"cd"},
			Description: "start a countdown",
			Usage:       "/countdown <duration> [--user=<id>] [--team=<name>]",
			Timeout:     commandTimeout,
			Handle:      h.groupOnly(h.countdown),
		},
		{
			Name:        "cancel_countdown",
			Section:     "Countdowns",
			Description: "cancel any countdown by ID",
			Usage:       "/cancel_countdown <ID>",
			Access:      router.AccessOwnerOnly,
			Timeout:     commandTimeout,
			Handle:      h.groupOnly(h.cancelCountdown),
		},
		{
			Name:        "travel",
			Section:     "Travel",
			Description: "book a travel for your team",
			Usage:       "/travel <duration> [interval_minutes]",
			Timeout:     commandTimeout,
			Handle:      h.groupOnly(h.travel),
		},
		{
			Name:        "cancel_travel",
			Section:     "Travel",
			Description: "cancel your team's latest travel",
			Usage:       "/cancel_travel [ID]",
			Timeout:     commandTimeout,
			Handle:      h.groupOnly(h.cancelTravel),
		},
		{
			Name:        "countdowns",
			Section:     "Countdowns",
			Aliases:     []string{"list"},
			Description: "list active countdowns",
			Usage:       "/countdowns",
			Timeout:     commandTimeout,
			Handle:      h.groupOnly(h.list),
		},
	}
}

func (h *Handlers) groupOnly(next router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		if req.Message == nil || !req.Message.IsGroup {
			return req.Reply(ctx, "This command only works in a group chat.")
		}
		return next(ctx, req)
	}
}

func channelOf(req *router.Request) int64 { return int64(req.Chat.ThreadID) }

// fail replies to a scheduler error. Errors the requester caused are not
// returned, so the request log stays clean.
func (h *Handlers) fail(ctx context.Context, req *router.Request, err error) error {
	msg, ok := rejection(err)
	if rerr := req.Reply(ctx, msg); rerr != nil {
		req.Logger.Warn("reply failed", logx.Err(rerr))
	}
	if ok {
		return nil
	}
	return err
}

func (h *Handlers) usage(ctx context.Context, req *router.Request, usage string) error {
	return req.Reply(ctx, tgui.Lines("Usage: "+tgui.Code(usage), tgui.Esc(countdown.DurationHelp)).String())
}

func (h *Handlers) countdown(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return h.usage(ctx, req, "/countdown <duration> [--user=<id>] [--team=<name>]")
	}
	cr := countdown.CountdownRequest{
		Tenant:   req.Chat.ChatID,
		Channel:  channelOf(req),
		Creator:  req.FromID,
		Duration: strings.Join(req.Args, " "),
	}
	if v, ok := req.Flag("user", "u"); ok {
		id, err := strconv.ParseInt(strings.TrimPrefix(v, "@"), 10, 64)
		if err != nil || id <= 0 {
			return req.Reply(ctx, invalidReply("--user takes a numeric user ID."))
		}
		cr.NotifyUser = id
	}
	if v, ok := req.Flag("team", "t"); ok {
		name, found := h.teams.Lookup(req.Chat.ChatID, v)
		if !found {
			return req.Reply(ctx, invalidReply("Unknown team "+v+"."))
		}
		cr.NotifyGroup = name
	}
	e, err := h.core.CreateCountdown(ctx, cr)
	if err != nil {
		return h.fail(ctx, req, err)
	}
	return req.Reply(ctx, h.render.countdownStarted(e, h.now()))
}

func (h *Handlers) travel(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return h.usage(ctx, req, "/travel <duration> [interval_minutes]")
	}
	team, res, candidates := h.teams.ResolveGroupAffinity(req.Chat.ChatID, req.FromID)
	switch res {
	case teams.None:
		return req.Reply(ctx, "⚠️ You are not on any team in this chat. Ask an owner to add you.")
	case teams.Ambiguous:
		return req.Reply(ctx, tgui.Textf("⚠️ You are on several teams (%s). Ask an owner to fix the roster.", strings.Join(candidates, ", ")).String())
	}

	args := req.Args
	interval := 0
	if len(args) > 1 {
		n, err := strconv.Atoi(args[len(args)-1])
		if err != nil {
			return h.usage(ctx, req, "/travel <duration> [interval_minutes]")
		}
		interval = n
		args = args[:len(args)-1]
	}
	e, view, err := h.core.CreateTravel(ctx, countdown.TravelRequest{
		Tenant:   req.Chat.ChatID,
		Channel:  channelOf(req),
		Creator:  req.FromID,
		Duration: strings.Join(args, " "),
		Interval: interval,
		Affinity: team,
	})
	if err != nil {
		return h.fail(ctx, req, err)
	}
	return req.Reply(ctx, h.render.travelStarted(e, view, h.now()))
}

func (h *Handlers) cancelCountdown(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, ("Usage: " + tgui.Code("/cancel_countdown <ID>")).String())
	}
	return h.cancel(ctx, req, "cancel_countdown", "countdown", countdown.CancelRequest{
		Tenant:     req.Chat.ChatID,
		ID:         req.Args[0],
		Requestor:  req.FromID,
		Privileged: req.IsOwner,
	})
}

func (h *Handlers) cancelTravel(ctx context.Context, req *router.Request) error {
	cr := countdown.CancelRequest{
		Tenant:     req.Chat.ChatID,
		Requestor:  req.FromID,
		Privileged: req.IsOwner,
	}
	switch len(req.Args) {
	case 0:
		cr.ID = countdown.Recent
	case 1:
		cr.ID = req.Args[0]
	default:
		return req.Reply(ctx, ("Usage: " + tgui.Code("/cancel_travel [ID]")).String())
	}
	if countdown.NormalizeID(cr.ID) == countdown.Recent {
		team, res, _ := h.teams.ResolveGroupAffinity(req.Chat.ChatID, req.FromID)
		if res != teams.Resolved {
			return req.Reply(ctx, "⚠️ You need to be on exactly one team to cancel its travel.")
		}
		cr.Affinity = team
	}
	return h.cancel(ctx, req, "cancel_travel", "travel", cr)
}

func (h *Handlers) cancel(ctx context.Context, req *router.Request, action, what string, cr countdown.CancelRequest) error {
	res, err := h.core.Cancel(ctx, cr)
	outcome := res.Outcome.String()
	if err != nil {
		outcome = "error"
	}
	h.record(ctx, req, storage.AuditEntry{
		ActorID: req.FromID,
		ChatID:  req.Chat.ChatID,
		Action:  action,
		Target:  auditTarget(cr, res),
		Outcome: outcome,
		Detail:  errDetail(err),
	})
	if err != nil {
		return h.fail(ctx, req, err)
	}
	return req.Reply(ctx, h.render.cancelled(res, what, h.now()))
}

func auditTarget(cr countdown.CancelRequest, res countdown.CancelResult) string {
	if res.Entry.ID != "" {
		return res.Entry.ID
	}
	return countdown.NormalizeID(cr.ID)
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (h *Handlers) record(ctx context.Context, req *router.Request, e storage.AuditEntry) {
	if h.audit == nil {
		return
	}
	if err := h.audit.AppendAudit(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
		req.Logger.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}

func (h *Handlers) list(ctx context.Context, req *router.Request) error {
	entries := h.core.List(req.Chat.ChatID)
	return req.Reply(ctx, h.render.list(entries, h.now()))
}
