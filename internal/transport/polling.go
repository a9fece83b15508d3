package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"molva/internal/api"
	"molva/internal/models"
)

// pollTransport fetches the active conversation on a fixed interval. Fetch
// errors are swallowed and retried on the next tick: availability over
// accuracy, the store dedups anyway. Typing and presence do not exist in
// this mode, so their producer methods are no-ops.
type pollTransport struct {
	api      *api.Client
	identity string
	interval time.Duration
	log      *logrus.Entry

	events chan models.Event

	mu     sync.Mutex
	target models.PollingContext
	seen   map[string]struct{}
	state  models.ConnectionState
}

func newPollTransport(opts Options) *pollTransport {
	return &pollTransport{
		api:      opts.API,
		identity: opts.Identity,
		interval: opts.PollInterval,
		log:      opts.Log.WithField("component", "transport.poll"),
		events:   make(chan models.Event, 64),
		seen:     make(map[string]struct{}),
		state:    models.StateConnected,
	}
}

func (p *pollTransport) Run(ctx context.Context) error {
	defer close(p.events)

	p.emit(models.Event{Kind: models.EventConnection, State: models.StateConnected})

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.state = models.StateDisconnected
			p.mu.Unlock()
			p.emit(models.Event{Kind: models.EventConnection, State: models.StateDisconnected})
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *pollTransport) tick(ctx context.Context) {
	p.mu.Lock()
	target := p.target
	p.mu.Unlock()

	if target.IsZero() {
		return
	}

	var (
		msgs []models.Message
		err  error
	)
	if target.ChannelID != "" {
		msgs, err = p.api.ChannelMessages(ctx, target.ChannelID)
	} else {
		msgs, err = p.api.DirectMessages(ctx, target.RecipientID)
	}
	if err != nil {
		// Swallowed on purpose; the next tick retries.
		p.log.WithError(err).Debug("poll fetch failed")
		return
	}

	p.mu.Lock()
	if p.target != target {
		// Target switched while the fetch was in flight; this response is
		// for a conversation nobody is looking at anymore.
		p.mu.Unlock()
		return
	}
	var fresh []models.Message
	for _, m := range msgs {
		if _, ok := p.seen[m.ID]; ok {
			continue
		}
		p.seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	p.mu.Unlock()

	if len(fresh) == 0 {
		return
	}
	p.emit(models.Event{
		Kind:           models.EventMessages,
		ConversationID: target.ConversationID(p.identity),
		Messages:       fresh,
	})
}

func (p *pollTransport) Send(ctx context.Context, out Outgoing) error {
	req := api.SendRequest{
		RecipientID: out.RecipientID,
		Content:     out.Content,
		Kind:        out.Kind,
		Attachments: out.Attachments,
		ReplyToID:   out.ReplyToID,
	}

	var (
		msg models.Message
		err error
	)
	if out.ChannelID != "" {
		msg, err = p.api.PostChannelMessage(ctx, out.ChannelID, req)
	} else {
		msg, err = p.api.PostDirectMessage(ctx, req)
	}
	if err != nil {
		if errors.Is(err, models.ErrAuthFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrSendFailed, err)
	}

	// The create response carries the server copy; forwarding it right away
	// reconciles the optimistic entry without waiting for the next tick.
	conversationID := msg.ConversationID
	if conversationID == "" {
		conversationID = models.PollingContext{
			RecipientID: out.RecipientID,
			ChannelID:   out.ChannelID,
		}.ConversationID(p.identity)
		msg.ConversationID = conversationID
	}

	p.mu.Lock()
	p.seen[msg.ID] = struct{}{}
	p.mu.Unlock()

	p.emit(models.Event{
		Kind:           models.EventMessages,
		ConversationID: conversationID,
		Messages:       []models.Message{msg},
	})
	return nil
}

// SetPollingContext replaces the active target and clears the seen-id set
// for it.
func (p *pollTransport) SetPollingContext(target models.PollingContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = target
	p.seen = make(map[string]struct{})
}

func (p *pollTransport) SendTyping(string, bool) error { return nil }

func (p *pollTransport) SendReadReceipt(string, time.Time) error { return nil }

func (p *pollTransport) Events() <-chan models.Event {
	return p.events
}

func (p *pollTransport) State() models.ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *pollTransport) emit(ev models.Event) {
	select {
	case p.events <- ev:
	default:
		p.log.WithField("kind", ev.Kind).Warn("event dropped")
	}
}
