package broadcast

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

// Subscriber consumes the fan-out channel and applies each event to the
// local hub.
type Subscriber struct {
	source  pubsub.Subscriber
	channel string
	hub     *hub.Hub
	ready   chan struct{}
	doneCh  chan struct{}
}

func NewSubscriber(source pubsub.Subscriber, channel string, h *hub.Hub) *Subscriber {
	return &Subscriber{
		source:  source,
		channel: channel,
		hub:     h,
		ready:   make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Ready is closed after the first subscription is active.
func (s *Subscriber) Ready() <-chan struct{} { return s.ready }

// Done returns a channel that is closed when Run() exits.
func (s *Subscriber) Done() <-chan struct{} { return s.doneCh }

// Run subscribes and applies events until ctx is done, resubscribing after
// the event stream ends unexpectedly.
func (s *Subscriber) Run(ctx context.Context) {
	defer close(s.doneCh)
	l := log.L()
	readyOnce := false

	for {
		events, err := s.source.Subscribe(ctx, s.channel)
		if err == nil {
			if !readyOnce {
				close(s.ready)
				readyOnce = true
			}
			for event := range events {
				s.Apply(event)
			}
		}

		if ctx.Err() != nil {
			return
		}
		l.Warn().Err(err).Str(log.FieldChannel, s.channel).Msg("fan-out subscription lost, resubscribing in 2s")
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// Apply performs one relayed operation on the local hub.
func (s *Subscriber) Apply(event *pubsub.Event) {
	switch event.Type {
	case pubsub.EventJoinUser:
		var p joinPayload
		if err := event.UnmarshalPayload(&p); err != nil || p.UserID == "" {
			l := log.L()
			l.Warn().Err(err).Msg("fan-out: invalid join payload")
			return
		}
		s.hub.JoinUser(event.Target, p.UserID)
	case pubsub.EventToRoom:
		s.hub.BroadcastToRoom(event.Target, event.Payload, event.Exclude)
	case pubsub.EventToUser:
		s.hub.BroadcastToUser(event.Target, event.Payload)
	case pubsub.EventToAll:
		s.hub.BroadcastToAll(event.Payload)
	default:
		l := log.L()
		l.Warn().Str(log.FieldEvent, event.Type).Msg("fan-out: unknown event type")
	}
}
