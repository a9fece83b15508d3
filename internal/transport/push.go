package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"molva/internal/models"
)

// pushTransport keeps one duplex websocket connection per session. Lost
// connections are redialed with exponential backoff up to a bounded number
// of attempts; an authentication rejection is terminal.
type pushTransport struct {
	url         string
	identity    string
	credential  string
	dialer      *websocket.Dialer
	maxAttempts int
	baseDelay   time.Duration
	log         *logrus.Entry

	events chan models.Event
	outbox chan wireEvent

	mu    sync.RWMutex
	state models.ConnectionState
	conn  *websocket.Conn
}

func newPushTransport(opts Options) *pushTransport {
	return &pushTransport{
		url:         opts.WSURL,
		identity:    opts.Identity,
		credential:  opts.Credential,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		maxAttempts: opts.ReconnectAttempts,
		baseDelay:   opts.ReconnectDelay,
		log:         opts.Log.WithField("component", "transport.push"),
		events:      make(chan models.Event, 64),
		outbox:      make(chan wireEvent, 64),
	}
}

// connect dials the initial connection, retrying transient failures with the
// same bounded backoff used for reconnects.
func (p *pushTransport) connect(ctx context.Context) error {
	p.setState(models.StateConnecting, nil)
	if err := p.redial(ctx); err != nil {
		if errors.Is(err, models.ErrAuthFailed) {
			p.setState(models.StateAuthFailed, err)
		} else {
			p.setState(models.StateDisconnected, err)
		}
		return err
	}
	p.setState(models.StateConnected, nil)
	return nil
}

func (p *pushTransport) Run(ctx context.Context) error {
	defer close(p.events)

	for {
		p.mu.RLock()
		conn := p.conn
		p.mu.RUnlock()

		err := p.pump(ctx, conn)
		if ctx.Err() != nil {
			p.setState(models.StateDisconnected, nil)
			return nil
		}

		p.log.WithError(err).Warn("connection lost, reconnecting")
		p.setState(models.StateReconnecting, err)

		if err := p.redial(ctx); err != nil {
			if errors.Is(err, models.ErrAuthFailed) {
				p.setState(models.StateAuthFailed, err)
				return models.ErrAuthFailed
			}
			p.setState(models.StateDisconnected, err)
			return models.ErrTransportUnavailable
		}
		p.setState(models.StateConnected, nil)
	}
}

// pump runs the read and write loops for one connection until either fails
// or ctx is cancelled.
func (p *pushTransport) pump(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- p.readLoop(conn)
		cancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- p.writeLoop(ctx, conn)
		cancel()
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	}
	_ = conn.Close()
	wg.Wait()

	return err
}

func (p *pushTransport) readLoop(conn *websocket.Conn) error {
	for {
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}

		decoded, ok, err := decodeEvent(ev)
		if err != nil {
			p.log.WithError(err).WithField("event", ev.Event).Warn("bad event payload")
			continue
		}
		if !ok {
			p.log.WithField("event", ev.Event).Debug("unhandled event")
			continue
		}
		p.emit(decoded)
	}
}

func (p *pushTransport) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case ev := <-p.outbox:
			if err := conn.WriteJSON(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *pushTransport) redial(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.baseDelay
	bo.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := p.dial(ctx)
		if err != nil && !errors.Is(err, models.ErrAuthFailed) {
			p.log.WithError(err).WithField("attempt", attempt).Debug("dial failed")
			return err
		}
		if errors.Is(err, models.ErrAuthFailed) {
			return backoff.Permanent(err)
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(p.maxAttempts)), ctx))
}

func (p *pushTransport) dial(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.credential)

	conn, resp, err := p.dialer.DialContext(ctx, p.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return models.ErrAuthFailed
		}
		return err
	}

	// Register the server-side identity once per connection.
	reg, err := newWireEvent(evRegister, wireRegister{UserID: p.identity})
	if err == nil {
		err = conn.WriteJSON(reg)
	}
	if err != nil {
		_ = conn.Close()
		return err
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	return nil
}

func (p *pushTransport) Send(_ context.Context, out Outgoing) error {
	event := evChannelMessage
	if out.RecipientID != "" {
		event = evMessagePrivate
	}

	ev, err := newWireEvent(event, wireSend{
		RecipientID: out.RecipientID,
		ChannelID:   out.ChannelID,
		Content:     out.Content,
		Kind:        out.Kind,
		Attachments: out.Attachments,
		ReplyToID:   out.ReplyToID,
	})
	if err != nil {
		return err
	}
	return p.enqueue(ev)
}

func (p *pushTransport) SendTyping(conversationID string, active bool) error {
	event := evChannelTyping
	switch {
	case models.IsDirectConversation(conversationID) && active:
		event = evTypingStart
	case models.IsDirectConversation(conversationID):
		event = evTypingStop
	case !active:
		event = evChannelTypingStop
	}

	ev, err := newWireEvent(event, wireTyping{
		ConversationID: conversationID,
		UserID:         p.identity,
	})
	if err != nil {
		return err
	}
	return p.enqueue(ev)
}

func (p *pushTransport) SendReadReceipt(messageID string, at time.Time) error {
	ev, err := newWireEvent(evMessageRead, wireReceipt{
		MessageID: messageID,
		UserID:    p.identity,
		ReadAt:    at,
	})
	if err != nil {
		return err
	}
	return p.enqueue(ev)
}

func (p *pushTransport) SetPollingContext(models.PollingContext) {}

func (p *pushTransport) Events() <-chan models.Event {
	return p.events
}

func (p *pushTransport) State() models.ConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *pushTransport) enqueue(ev wireEvent) error {
	select {
	case p.outbox <- ev:
		return nil
	default:
		return models.ErrSendFailed
	}
}

func (p *pushTransport) setState(s models.ConnectionState, err error) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()

	p.emit(models.Event{Kind: models.EventConnection, State: s, Err: err})
}

func (p *pushTransport) emit(ev models.Event) {
	select {
	case p.events <- ev:
	default:
		// Consumer fell behind; dropping is safer than blocking the pumps.
		p.log.WithField("kind", ev.Kind).Warn("event dropped")
	}
}
