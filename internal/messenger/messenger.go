package messenger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"molva/internal/api"
	"molva/internal/config"
	"molva/internal/content"
	"molva/internal/delivery"
	"molva/internal/history"
	"molva/internal/models"
	"molva/internal/presence"
	"molva/internal/store"
	"molva/internal/transport"
)

const historyPreloadLimit = 100

// Messenger is the single entry point for the application's chat needs: it
// owns the transport, the message store and the presence/delivery trackers
// for one session, and fans state changes out to subscribers. One Messenger
// per session; nothing here is global.
type Messenger struct {
	cfg      *config.Config
	identity string
	api      *api.Client
	manager  *transport.Manager
	tr       transport.Transport
	store    *store.Store
	presence *presence.Tracker
	delivery *delivery.Tracker
	history  *history.Cache
	log      *logrus.Entry

	mu      sync.RWMutex
	subs    map[int]func(models.Event)
	nextSub int
	active  models.PollingContext
	emitter *presence.Emitter
}

func New(cfg *config.Config, identity, credential string, log *logrus.Logger) (*Messenger, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	client := api.NewClient(cfg.APIBaseURL, credential)

	var cache *history.Cache
	if cfg.HistoryPath != "" {
		var err error
		cache, err = history.Open(cfg.HistoryPath)
		if err != nil {
			return nil, err
		}
	}

	m := &Messenger{
		cfg:      cfg,
		identity: identity,
		api:      client,
		store:    store.New(),
		presence: presence.NewTracker(),
		delivery: delivery.NewTracker(),
		history:  cache,
		log:      log.WithField("component", "messenger"),
		subs:     make(map[int]func(models.Event)),
	}
	m.manager = transport.NewManager(transport.Options{
		EndpointClass:     cfg.EndpointClass,
		WSURL:             cfg.WSURL,
		API:               client,
		Identity:          identity,
		Credential:        credential,
		PollInterval:      cfg.PollInterval,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		Log:               log,
	})
	return m, nil
}

// Start connects the transport and begins processing events. It returns once
// the session is established; further connection-state changes flow through
// the subscription channel.
func (m *Messenger) Start(ctx context.Context) error {
	tr, err := m.manager.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	m.tr = tr

	go func() {
		if err := tr.Run(ctx); err != nil {
			m.log.WithError(err).Warn("transport stopped")
		}
	}()
	go m.loop(ctx)
	return nil
}

func (m *Messenger) Close() error {
	m.mu.Lock()
	emitter := m.emitter
	m.emitter = nil
	m.mu.Unlock()

	if emitter != nil {
		emitter.Close()
	}
	if m.history != nil {
		return m.history.Close()
	}
	return nil
}

// loop serializes all state mutation: transport events and the optimistic
// sweep run on this one goroutine.
func (m *Messenger) loop(ctx context.Context) {
	sweep := time.NewTicker(30 * time.Second)
	defer sweep.Stop()

	for {
		select {
		case ev, ok := <-m.tr.Events():
			if !ok {
				return
			}
			m.handle(ev)
		case <-sweep.C:
			for _, msg := range m.store.ExpireOptimistic(time.Now(), m.cfg.OptimisticWindow) {
				m.log.WithFields(logrus.Fields{
					"message_id":   msg.ID,
					"conversation": msg.ConversationID,
				}).Warn("optimistic message never confirmed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Messenger) handle(ev models.Event) {
	switch ev.Kind {
	case models.EventMessages:
		res := m.store.MergeIncoming(ev.ConversationID, ev.Messages)
		for oldID, newID := range res.Replaced {
			m.delivery.Rename(oldID, newID)
			m.delivery.MarkDelivered(newID)
		}
		if m.history != nil {
			if err := m.history.Put(ev.ConversationID, ev.Messages); err != nil {
				m.log.WithError(err).Warn("history write failed")
			}
		}
		if res.Empty() {
			return
		}
	case models.EventTyping:
		m.presence.OnTypingSignal(ev.ConversationID, ev.UserID, ev.TypingActive, time.Now())
	case models.EventPresence:
		m.presence.UpdateRoster(ev.Roster)
	case models.EventReceipt:
		m.delivery.MarkRead(ev.MessageID, ev.ReadAt)
	case models.EventConnection:
		if ev.State == models.StateAuthFailed {
			m.log.Warn("session credential rejected, re-login required")
		}
	}
	m.publish(ev)
}

// SelectConversation makes target the active conversation: it retargets the
// polling loop, preloads cached history, and fetches the current server
// history. Known message ids are marked seen first so the refetch does not
// re-merge what is already displayed.
func (m *Messenger) SelectConversation(ctx context.Context, target models.PollingContext) error {
	if target.IsZero() {
		return fmt.Errorf("empty conversation target")
	}
	conversationID := target.ConversationID(m.identity)

	m.mu.Lock()
	m.active = target
	old := m.emitter
	m.emitter = presence.NewEmitter(m.cfg.TypingEmitWindow, func(active bool) {
		if err := m.tr.SendTyping(conversationID, active); err != nil {
			m.log.WithError(err).Debug("typing signal failed")
		}
	})
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	m.tr.SetPollingContext(target)
	m.store.ResetSeen(conversationID)

	if m.history != nil {
		if cached, err := m.history.Load(conversationID, historyPreloadLimit); err != nil {
			m.log.WithError(err).Warn("history preload failed")
		} else if len(cached) > 0 {
			m.store.MergeIncoming(conversationID, cached)
		}
	}

	var known []string
	for _, msg := range m.store.Messages(conversationID) {
		if !msg.IsOptimistic() {
			known = append(known, msg.ID)
		}
	}
	m.store.MarkSeen(conversationID, known...)

	msgs, err := m.fetch(ctx, target)
	if err != nil {
		return fmt.Errorf("initial fetch: %w", err)
	}

	// The user may have moved on while the fetch was in flight; merging the
	// response then would resurrect a conversation nobody is looking at.
	m.mu.RLock()
	current := m.active == target
	m.mu.RUnlock()
	if !current {
		return nil
	}

	m.handle(models.Event{
		Kind:           models.EventMessages,
		ConversationID: conversationID,
		Messages:       msgs,
	})
	return nil
}

func (m *Messenger) fetch(ctx context.Context, target models.PollingContext) ([]models.Message, error) {
	if target.ChannelID != "" {
		return m.api.ChannelMessages(ctx, target.ChannelID)
	}
	return m.api.DirectMessages(ctx, target.RecipientID)
}

// Send appends an optimistic message and dispatches it in the background.
// The returned message carries the temporary id; it is replaced by the
// server copy once the fingerprint match comes back.
func (m *Messenger) Send(ctx context.Context, text string, attachments []models.Attachment, replyTo string) (models.Message, error) {
	m.mu.RLock()
	target := m.active
	m.mu.RUnlock()
	if target.IsZero() {
		return models.Message{}, fmt.Errorf("no active conversation")
	}

	kind := models.MessageKindText
	if len(attachments) > 0 {
		kind = models.MessageKindFile
	}

	msg := models.Message{
		ID:             models.NewOptimisticID(),
		ConversationID: target.ConversationID(m.identity),
		SenderID:       m.identity,
		Content:        content.Sanitize(text),
		Timestamp:      time.Now(),
		Kind:           kind,
		ReplyToID:      replyTo,
		Attachments:    attachments,
	}

	m.store.AppendOptimistic(msg)
	m.delivery.MarkSent(msg.ID)
	m.publish(models.Event{
		Kind:           models.EventMessages,
		ConversationID: msg.ConversationID,
		Messages:       []models.Message{msg},
	})

	out := transport.Outgoing{
		RecipientID: target.RecipientID,
		ChannelID:   target.ChannelID,
		Content:     msg.Content,
		Kind:        msg.Kind,
		Attachments: attachments,
		ReplyToID:   replyTo,
	}
	go func() {
		// The caller's context may end right after Send returns; dispatch
		// must not be cancelled with it.
		dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := m.tr.Send(dispatchCtx, out); err != nil {
			// Delivery state stays at sent; the stuck indicator is the
			// user-visible signal. No automatic retry.
			m.log.WithError(err).WithField("message_id", msg.ID).Warn("dispatch failed")
		}
	}()

	return msg, nil
}

// NotifyLocalTyping reports local keyboard activity in the active
// conversation. Signals are rate-limited and a stop is emitted automatically
// once input goes idle. No-op under polling transports.
func (m *Messenger) NotifyLocalTyping() {
	m.mu.RLock()
	emitter := m.emitter
	m.mu.RUnlock()
	if emitter != nil {
		emitter.Input()
	}
}

// MarkRead sends a read receipt for a peer's message. No-op under polling
// transports.
func (m *Messenger) MarkRead(messageID string) {
	if err := m.tr.SendReadReceipt(messageID, time.Now()); err != nil {
		m.log.WithError(err).Debug("read receipt failed")
	}
}

// Subscribe registers a handler for every published event and returns its
// disposer. Disposal is idempotent and safe during teardown.
func (m *Messenger) Subscribe(fn func(models.Event)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Messenger) publish(ev models.Event) {
	m.mu.RLock()
	handlers := make([]func(models.Event), 0, len(m.subs))
	for _, fn := range m.subs {
		handlers = append(handlers, fn)
	}
	m.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Read-only accessors for rendering.

func (m *Messenger) Messages(conversationID string) []models.Message {
	return m.store.Messages(conversationID)
}

func (m *Messenger) ActiveTypers(conversationID string) []string {
	return m.presence.ActiveTypers(conversationID, time.Now())
}

func (m *Messenger) Roster() []models.PresenceEntry {
	return m.presence.Roster()
}

func (m *Messenger) DeliveryStatus(messageID string) models.DeliveryState {
	return m.delivery.StatusFor(messageID)
}

func (m *Messenger) ConnectionState() models.ConnectionState {
	if m.tr == nil {
		return models.StateDisconnected
	}
	return m.tr.State()
}

// Channels lists the channels visible to this session.
func (m *Messenger) Channels(ctx context.Context) ([]models.Conversation, error) {
	return m.api.Channels(ctx)
}

// ActiveConversation returns the id of the currently selected conversation,
// or empty when none is selected.
func (m *Messenger) ActiveConversation() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active.IsZero() {
		return ""
	}
	return m.active.ConversationID(m.identity)
}
