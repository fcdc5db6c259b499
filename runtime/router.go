// Package runtime wires the presence core together: the fan-out router
// and the connection lifecycle manager. It orchestrates the system
// without containing storage or transport details.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/bytedance/sonic"
	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain/event"
	apperrors "chat-relay/errors"
	"chat-relay/observability"
)

// Router delivers one event to many live sessions. Delivery is
// at-most-once and fire-and-forget: offline targets are skipped
// silently, nothing is queued and nothing is retried. Ordering is
// guaranteed per target only, by each sink's single ordered channel.
type Router struct {
	log        *slog.Logger
	registry   contract.ISessionRegistry
	monitoring *observability.Monitor
}

func NewRouter(log *slog.Logger, registry contract.ISessionRegistry,
	monitoring *observability.Monitor) *Router {
	return &Router{log: log, registry: registry, monitoring: monitoring}
}

// Deliver fans the event out to every live session of the target users,
// excluding the originating session. Target IDs are deduplicated.
func (r *Router) Deliver(ctx context.Context, name event.Name, targets []string,
	originSessionID string, payload any) {
	envelope, err := r.seal(name, payload)
	if err != nil {
		r.log.Error("Dropping undeliverable event", "event", name, "err", err)
		return
	}

	for _, userID := range lo.Uniq(targets) {
		session, err := r.registry.FindByUser(ctx, userID)
		if errors.Is(err, apperrors.ErrNotFound) {
			// Offline target: skip, presence self-heals on reconnect
			r.monitoring.TargetSkipped()
			continue
		}
		if err != nil {
			r.log.Error("Target lookup failed, skipping", "user", userID, "event", name, "err", err)
			r.monitoring.TargetSkipped()
			continue
		}
		if session.ID == originSessionID {
			continue
		}
		r.send(ctx, session.ID, envelope)
	}
}

func (r *Router) DeliverToUser(ctx context.Context, name event.Name, userID,
	originSessionID string, payload any) {
	r.Deliver(ctx, name, []string{userID}, originSessionID, payload)
}

// DeliverToRoom targets every session whose joined-room set contains
// the room, excluding the origin.
func (r *Router) DeliverToRoom(ctx context.Context, name event.Name, roomID,
	originSessionID string, payload any) {
	sessions, err := r.registry.SessionsInRoom(ctx, roomID)
	if err != nil {
		r.log.Error("Room fan-out aborted", "room", roomID, "event", name, "err", err)
		return
	}

	envelope, err := r.seal(name, payload)
	if err != nil {
		r.log.Error("Dropping undeliverable event", "event", name, "err", err)
		return
	}

	for _, session := range sessions {
		if session.ID == originSessionID {
			continue
		}
		r.send(ctx, session.ID, envelope)
	}
}

// DeliverToChannel targets the transient channel members, used for
// conversation-scoped relays like typing indicators.
func (r *Router) DeliverToChannel(ctx context.Context, name event.Name, channelID,
	originSessionID string, payload any) {
	envelope, err := r.seal(name, payload)
	if err != nil {
		r.log.Error("Dropping undeliverable event", "event", name, "err", err)
		return
	}

	for _, sessionID := range r.registry.SessionsInChannel(channelID) {
		if sessionID == originSessionID {
			continue
		}
		r.send(ctx, sessionID, envelope)
	}
}

// seal marshals the payload once per fan-out, not once per target.
func (r *Router) seal(name event.Name, payload any) (event.Envelope, error) {
	envelope := event.Envelope{Event: name}
	if payload == nil {
		return envelope, nil
	}
	data, err := sonic.Marshal(payload)
	if err != nil {
		return event.Envelope{}, err
	}
	envelope.Payload = json.RawMessage(data)
	return envelope, nil
}

func (r *Router) send(ctx context.Context, sessionID string, envelope event.Envelope) {
	sink, ok := r.registry.SinkFor(sessionID)
	if !ok {
		// Session persisted but its transport lives in another process
		// or is already torn down: best-effort means we skip it.
		r.monitoring.TargetSkipped()
		return
	}
	if err := sink.Consume(ctx, envelope); err != nil {
		r.monitoring.DeliveryFailure()
		r.log.Warn("Delivery failed", "session", sessionID, "event", envelope.Event, "err", err)
		return
	}
	r.monitoring.EventDelivered()
}
