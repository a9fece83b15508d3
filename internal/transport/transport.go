package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"molva/internal/api"
	"molva/internal/config"
	"molva/internal/models"
)

// Outgoing is a message handed to the transport for dispatch. Exactly one of
// RecipientID or ChannelID is set.
type Outgoing struct {
	RecipientID string
	ChannelID   string
	Content     string
	Kind        models.MessageKind
	Attachments []models.Attachment
	ReplyToID   string
}

// Transport is the mode-agnostic session transport. Push-only operations
// (typing, read receipts) are explicit no-ops in polling mode, so callers
// never branch on the mode.
type Transport interface {
	// Run drives the transport until ctx is cancelled or the connection is
	// lost for good.
	Run(ctx context.Context) error
	Send(ctx context.Context, out Outgoing) error
	// SetPollingContext replaces the polling target and resets its seen-id
	// set. No effect in push mode.
	SetPollingContext(target models.PollingContext)
	SendTyping(conversationID string, active bool) error
	SendReadReceipt(messageID string, at time.Time) error
	Events() <-chan models.Event
	State() models.ConnectionState
}

// Options configures a Manager for one session.
type Options struct {
	EndpointClass string
	WSURL         string
	API           *api.Client
	Identity      string
	Credential    string

	PollInterval      time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	Log *logrus.Logger
}

// Manager owns the transport choice for a session. The mode is decided once
// in Connect and never changes afterwards; there is no mid-session fallback
// from push to polling.
type Manager struct {
	opts   Options
	log    *logrus.Entry
	active Transport
}

func NewManager(opts Options) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = 5
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Manager{
		opts: opts,
		log:  opts.Log.WithField("component", "transport"),
	}
}

// Connect selects the transport mode from the endpoint class and establishes
// the session. An invalid or expired credential fails with ErrAuthFailed and
// is never retried silently.
func (m *Manager) Connect(ctx context.Context) (Transport, error) {
	switch m.opts.EndpointClass {
	case config.EndpointClassServerless:
		// The backend cannot hold long-lived connections; probe the REST
		// surface once so bad credentials fail loudly here instead of being
		// swallowed by the polling loop.
		if _, err := m.opts.API.Channels(ctx); err != nil {
			if errors.Is(err, models.ErrAuthFailed) {
				return nil, models.ErrAuthFailed
			}
			return nil, fmt.Errorf("%w: %v", models.ErrTransportUnavailable, err)
		}
		m.active = newPollTransport(m.opts)
		m.log.WithField("mode", "polling").Info("transport connected")
	default:
		p := newPushTransport(m.opts)
		if err := p.connect(ctx); err != nil {
			if errors.Is(err, models.ErrAuthFailed) {
				return nil, models.ErrAuthFailed
			}
			return nil, fmt.Errorf("%w: %v", models.ErrTransportUnavailable, err)
		}
		m.active = p
		m.log.WithField("mode", "push").Info("transport connected")
	}
	return m.active, nil
}

// Transport returns the active transport, or nil before Connect.
func (m *Manager) Transport() Transport {
	return m.active
}
