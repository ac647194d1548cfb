package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/clinicvault/clinicvault-api/models"
)

var (
	// ErrSessionClosed is returned on join when the consultation is not in
	// the active state. User-correctable: completing payment opens the
	// session.
	ErrSessionClosed = errors.New("consultation session is not open")

	// ErrRoomFull is returned when a third distinct user id attempts to
	// join a two-party consultation room.
	ErrRoomFull = errors.New("consultation room already has two participants")
)

// outboundQueueSize bounds each participant's send queue. When a peer reads
// too slowly the oldest queued envelope is dropped so one stalled client
// cannot block the room.
const outboundQueueSize = 64

// ConsultationSource provides lifecycle status lookups for join gating
type ConsultationSource interface {
	Status(ctx context.Context, consultationID string) (models.ConsultationStatus, error)
}

// Participant describes a connecting user
type Participant struct {
	UserID string
	Name   string
	Role   string
}

// Handle is the registry's ownership token for one connected participant.
// The registry owns it for its lifetime; connections drain Outbound and call
// Leave exactly once on every exit path.
type Handle struct {
	ConsultationID string
	Participant

	room   *room
	out    chan models.Envelope
	closed bool // guarded by room.mu
}

// Outbound returns the channel the connection's write loop drains
func (h *Handle) Outbound() <-chan models.Envelope {
	return h.out
}

// enqueue appends an envelope to the handle's outbound queue, dropping the
// oldest queued envelope on overflow. Callers hold room.mu, which keeps
// delivery FIFO per sender.
func (h *Handle) enqueue(env models.Envelope) {
	if h.closed {
		return
	}
	for {
		select {
		case h.out <- env:
			return
		default:
		}
		select {
		case dropped := <-h.out:
			zap.S().Warnw("outbound queue full, dropping oldest envelope",
				"consultationID", h.ConsultationID,
				"userID", h.UserID,
				"droppedType", dropped.Type,
			)
		default:
		}
	}
}

type room struct {
	consultationID string

	mu      sync.Mutex
	members map[string]*Handle
	closed  bool
}

// Registry tracks, per consultation id, the set of currently connected
// participants. Rooms are created on first join and torn down when the last
// participant leaves; they are fully independent units of concurrency.
type Registry struct {
	consultations ConsultationSource

	mu    sync.Mutex
	rooms map[string]*room
}

// NewRegistry creates a registry gated by the given consultation source
func NewRegistry(consultations ConsultationSource) *Registry {
	return &Registry{
		consultations: consultations,
		rooms:         make(map[string]*room),
	}
}

// InitiatesOffer reports whether the participant with id self originates the
// SDP offer towards peer. Both ends evaluate the same comparison, so they
// agree without a coordination message: the larger id offers.
func InitiatesOffer(self, peer string) bool {
	return self > peer
}

func (r *Registry) getOrCreateRoom(consultationID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[consultationID]
	if !ok {
		rm = &room{
			consultationID: consultationID,
			members:        make(map[string]*Handle),
		}
		r.rooms[consultationID] = rm
	}
	return rm
}

func (r *Registry) lookupRoom(consultationID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[consultationID]
}

// Join admits a participant into the room for consultationID. It fails with
// ErrSessionClosed unless the consultation is active, and with ErrRoomFull
// when two other distinct user ids are already connected. A reconnect by an
// already-present user id replaces the prior handle and notifies the peer.
func (r *Registry) Join(ctx context.Context, consultationID string, p Participant) (*Handle, error) {
	status, err := r.consultations.Status(ctx, consultationID)
	if err != nil {
		zap.S().Warnw("failed to resolve consultation status for join",
			"consultationID", consultationID,
			"error", err,
		)
		return nil, ErrSessionClosed
	}
	if status != models.StatusActive {
		return nil, ErrSessionClosed
	}

	for {
		rm := r.getOrCreateRoom(consultationID)
		rm.mu.Lock()
		if rm.closed {
			// lost a race with teardown, take a fresh room
			rm.mu.Unlock()
			continue
		}

		prior, reconnect := rm.members[p.UserID]
		if !reconnect && len(rm.members) >= 2 {
			rm.mu.Unlock()
			return nil, ErrRoomFull
		}

		h := &Handle{
			ConsultationID: consultationID,
			Participant:    p,
			room:           rm,
			out:            make(chan models.Envelope, outboundQueueSize),
		}
		rm.members[p.UserID] = h
		if reconnect {
			prior.closed = true
			close(prior.out)
		}

		for id, peer := range rm.members {
			if id == p.UserID {
				continue
			}
			if reconnect {
				peer.enqueue(models.Envelope{
					Type: models.EnvelopeSystem,
					Text: p.Name + " reconnected",
				})
			} else {
				peer.enqueue(models.Envelope{
					Type:      models.EnvelopeSystem,
					Text:      p.Name + " joined",
					Initiator: InitiatesOffer(id, p.UserID),
				})
				h.enqueue(models.Envelope{
					Type:      models.EnvelopeSystem,
					Text:      peer.Name + " is in the consultation",
					Initiator: InitiatesOffer(p.UserID, id),
				})
			}
		}
		rm.mu.Unlock()

		zap.S().Infow("participant joined consultation room",
			"consultationID", consultationID,
			"userID", p.UserID,
			"role", p.Role,
			"reconnect", reconnect,
		)
		return h, nil
	}
}

// Leave removes the handle from its room, notifies the remaining peer and
// tears the room down when it empties. Safe to call with a handle that has
// already been replaced by a reconnect; the replacement stays untouched.
func (r *Registry) Leave(h *Handle) {
	rm := h.room
	rm.mu.Lock()
	current, ok := rm.members[h.UserID]
	if !ok || current != h {
		// stale handle from a reconnect race
		rm.mu.Unlock()
		return
	}
	delete(rm.members, h.UserID)
	if !h.closed {
		h.closed = true
		close(h.out)
	}
	for _, peer := range rm.members {
		peer.enqueue(models.Envelope{
			Type: models.EnvelopeSystem,
			Text: h.Name + " left",
		})
	}
	empty := len(rm.members) == 0
	if empty {
		rm.closed = true
	}
	rm.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.rooms[h.ConsultationID] == rm {
			delete(r.rooms, h.ConsultationID)
		}
		r.mu.Unlock()
	}

	zap.S().Infow("participant left consultation room",
		"consultationID", h.ConsultationID,
		"userID", h.UserID,
	)
}

// BroadcastToPeers delivers env to every other participant in the sender's
// room. Delivery is FIFO per sender; envelopes never cross consultation
// boundaries because the room is resolved from the sender's own handle.
func (r *Registry) BroadcastToPeers(h *Handle, env models.Envelope) {
	rm := h.room
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for id, peer := range rm.members {
		if id == h.UserID {
			continue
		}
		peer.enqueue(env)
	}
}

// InjectExternal pushes an envelope into a room without being one of its
// participants, used by the transcription pipeline. A missing room is not an
// error: the call turns into a logged no-op when it races with call end.
func (r *Registry) InjectExternal(consultationID string, env models.Envelope) {
	rm := r.lookupRoom(consultationID)
	if rm == nil {
		zap.S().Infow("dropping external envelope, room no longer exists",
			"consultationID", consultationID,
			"type", env.Type,
		)
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		zap.S().Infow("dropping external envelope, room closed",
			"consultationID", consultationID,
			"type", env.Type,
		)
		return
	}
	for _, member := range rm.members {
		member.enqueue(env)
	}
}

// ActiveRooms lists the consultation ids with at least one connected
// participant, for the background sweeper.
func (r *Registry) ActiveRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids
}

// CloseRoom force-disconnects every participant of a room, used when a
// consultation leaves the active state while sockets are still attached.
func (r *Registry) CloseRoom(consultationID, reason string) {
	rm := r.lookupRoom(consultationID)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	for id, member := range rm.members {
		member.enqueue(models.Envelope{
			Type: models.EnvelopeSystem,
			Text: reason,
		})
		member.closed = true
		close(member.out)
		delete(rm.members, id)
	}
	rm.closed = true
	rm.mu.Unlock()

	r.mu.Lock()
	if r.rooms[consultationID] == rm {
		delete(r.rooms, consultationID)
	}
	r.mu.Unlock()

	zap.S().Infow("consultation room closed", "consultationID", consultationID, "reason", reason)
}
