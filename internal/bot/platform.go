package bot

import (
	"context"
	"errors"
	"time"

	"campbot/internal/countdown"
	kit "campbot/internal/transport"
	"campbot/pkg/logx"
	"campbot/pkg/tgui"
)

// ErrNoTopics is returned by CreateSpace when the adapter cannot manage
// forum topics.
var ErrNoTopics = errors.New("forum topics not supported")

// Platform implements the countdown collaborators on top of a chat adapter.
// A tenant is a group chat, an entry's channel is the forum thread the
// request came from and a shared space is a forum topic.
//
// Telegram has no per-topic membership: AddMember mentions the member inside
// the topic so they get pulled in, RemoveMember only logs.
type Platform struct {
	sender kit.Sender
	topics kit.TopicManager
	roster countdown.Roster
	log    logx.Logger
	render renderer
	now    func() time.Time
}

func NewPlatform(sender kit.Sender, topics kit.TopicManager, roster countdown.Roster, loc *time.Location, log logx.Logger) *Platform {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Platform{
		sender: sender,
		topics: topics,
		roster: roster,
		log:    log,
		render: renderer{loc: loc},
		now:    time.Now,
	}
}

func target(tenant int64, thread int64) kit.ChatTarget {
	return kit.ChatTarget{ChatID: tenant, ThreadID: int(thread)}
}

func htmlOpts() *kit.SendOptions {
	return &kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: true}
}

// Deliver renders and posts a notice. It satisfies notifier.Sender.
func (p *Platform) Deliver(ctx context.Context, n countdown.Notice) error {
	e := n.Entry
	to := target(e.Tenant, e.Channel)
	switch {
	case n.Kind == countdown.NoticeSpaceReady && n.Space != 0:
		to = target(e.Tenant, int64(n.Space))
	case n.Kind == countdown.NoticeDeparted && n.Space != 0:
		to = target(e.Tenant, int64(n.Space))
	}
	text := p.render.notice(n, p.mentions(n), p.now())
	if text == "" {
		return nil
	}
	_, err := p.sender.SendText(ctx, to, text, htmlOpts())
	return err
}

// mentions lists who gets pinged by a completion.
func (p *Platform) mentions(n countdown.Notice) tgui.H {
	if n.Kind != countdown.NoticeCompleted {
		return ""
	}
	t := n.Entry.Notify
	switch t.Kind {
	case countdown.TargetUser:
		id, _ := t.UserID()
		return mention(id)
	case countdown.TargetGroup:
		if p.roster == nil {
			return ""
		}
		ids := p.roster.Members(n.Entry.Tenant, t.ID)
		parts := make([]tgui.H, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, mention(id))
		}
		return tgui.Join(" ", parts...)
	default:
		return ""
	}
}

func (p *Platform) CreateSpace(ctx context.Context, tenant int64, name string) (countdown.SpaceID, error) {
	if p.topics == nil {
		return 0, ErrNoTopics
	}
	thread, err := p.topics.CreateTopic(ctx, tenant, name)
	if err != nil {
		return 0, err
	}
	p.log.Info("topic created", logx.Int64("tenant", tenant), logx.Int("thread", thread), logx.String("name", name))
	return countdown.SpaceID(thread), nil
}

func (p *Platform) AddMember(ctx context.Context, tenant int64, space countdown.SpaceID, member int64) error {
	_, err := p.sender.SendText(ctx, target(tenant, int64(space)), ("👋 " + mention(member) + " joined this window.").String(), htmlOpts())
	return err
}

func (p *Platform) RemoveMember(_ context.Context, tenant int64, space countdown.SpaceID, member int64) error {
	p.log.Debug("member left topic", logx.Int64("tenant", tenant), logx.Int64("thread", int64(space)), logx.Int64("member", member))
	return nil
}

// ArchiveAndLock posts a closing line and closes the topic.
func (p *Platform) ArchiveAndLock(ctx context.Context, tenant int64, space countdown.SpaceID) error {
	if p.topics == nil {
		return ErrNoTopics
	}
	to := target(tenant, int64(space))
	if _, err := p.sender.SendText(ctx, to, "📦 All teams arrived. This topic is now closed.", nil); err != nil {
		p.log.Warn("closing note not sent", logx.Int64("tenant", tenant), logx.Int64("thread", int64(space)), logx.Err(err))
	}
	return p.topics.CloseTopic(ctx, tenant, int(space))
}
