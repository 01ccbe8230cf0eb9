package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"church-chat-service/internal/models"
	"church-chat-service/internal/observability"
)

// Call phases. A session is created in phaseInvited and deleted on end; the
// rejected transition only notifies the caller and never closes the room for
// still-invited recipients.
const (
	phaseInvited  = "invited"
	phaseAccepted = "accepted"
)

// callSession is the ephemeral per-call-attempt state. It lives only in hub
// memory; nothing about a call is ever persisted.
type callSession struct {
	room      string
	callerID  int
	invited   map[int]struct{}
	phase     string
	createdAt time.Time
}

// InviteCall opens a call attempt: a session keyed by the room token, plus a
// call:incoming emit to every currently-connected recipient. Recipients with
// no live connection get nothing but a logged warning — invites are never
// queued or persisted.
func (h *Hub) InviteCall(caller *Client, p models.CallInvitePayload) {
	if p.Room == "" || len(p.Recipients) == 0 {
		return
	}

	invited := make(map[int]struct{}, len(p.Recipients))
	for _, id := range p.Recipients {
		if id != caller.userID {
			invited[id] = struct{}{}
		}
	}

	h.mu.Lock()
	if existing, ok := h.calls[p.Room]; ok {
		// Re-invite into a live room extends the invited set.
		for id := range invited {
			existing.invited[id] = struct{}{}
		}
	} else {
		h.calls[p.Room] = &callSession{
			room:      p.Room,
			callerID:  caller.userID,
			invited:   invited,
			phase:     phaseInvited,
			createdAt: time.Now(),
		}
	}
	h.mu.Unlock()

	observability.IncCallSignal("invite")
	incoming := models.CallIncoming{Room: p.Room, From: caller.userID, CallerName: p.CallerName}
	for id := range invited {
		if reached := h.EmitToUser(id, models.EventCallIncoming, incoming); reached == 0 {
			h.log.Warn("call invite dropped, recipient offline",
				zap.String("room", p.Room),
				zap.Int("caller_id", caller.userID),
				zap.Int("recipient_id", id))
		}
	}
}

// AcceptCall notifies the caller's live connections that the acceptor picked
// up. Multiple acceptors are allowed; exclusivity is a client policy.
func (h *Hub) AcceptCall(acceptor *Client, room string) {
	h.mu.Lock()
	session, ok := h.calls[room]
	if ok {
		session.phase = phaseAccepted
	}
	h.mu.Unlock()
	if !ok {
		h.log.Debug("accept for unknown call room", zap.String("room", room))
		return
	}

	observability.IncCallSignal("accept")
	h.EmitToUser(session.callerID, models.EventCallAccepted, models.CallAnswered{Room: room, User: acceptor.userID})
}

// RejectCall notifies the caller only; other invited recipients keep ringing.
func (h *Hub) RejectCall(rejector *Client, room string) {
	h.mu.Lock()
	session, ok := h.calls[room]
	if ok {
		delete(session.invited, rejector.userID)
	}
	h.mu.Unlock()
	if !ok {
		h.log.Debug("reject for unknown call room", zap.String("room", room))
		return
	}

	observability.IncCallSignal("reject")
	h.EmitToUser(session.callerID, models.EventCallRejected, models.CallAnswered{Room: room, User: rejector.userID})
}

// EndCall is the sole terminal transition. It broadcasts call:ended to every
// listed recipient's live connections and to the room itself, then drops the
// session. Ending an unknown or already-ended room is a no-op.
func (h *Hub) EndCall(room string, recipients []int) {
	h.mu.Lock()
	_, ok := h.calls[room]
	if ok {
		delete(h.calls, room)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	observability.IncCallSignal("end")
	ended := models.CallEnded{Room: room}
	for _, id := range recipients {
		h.EmitToUser(id, models.EventCallEnded, ended)
	}
	h.BroadcastToRoom(room, models.EventCallEnded, ended, nil)
}

// StartJanitor expires unanswered invites older than the configured TTL.
// It runs until ctx is done.
func (h *Hub) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.expireStaleInvites()
			}
		}
	}()
}

func (h *Hub) expireStaleInvites() {
	cutoff := time.Now().Add(-h.inviteTTL)

	h.mu.RLock()
	type stale struct {
		room    string
		parties []int
	}
	var expired []stale
	for room, session := range h.calls {
		if session.phase != phaseInvited || session.createdAt.After(cutoff) {
			continue
		}
		parties := make([]int, 0, len(session.invited)+1)
		parties = append(parties, session.callerID)
		for id := range session.invited {
			parties = append(parties, id)
		}
		expired = append(expired, stale{room: room, parties: parties})
	}
	h.mu.RUnlock()

	for _, s := range expired {
		h.log.Info("expiring unanswered call invite", zap.String("room", s.room))
		h.EndCall(s.room, s.parties)
	}
}

// collectDeadCallsLocked drops sessions where neither the caller nor any
// invited recipient still holds a live connection. Caller must hold h.mu.
func (h *Hub) collectDeadCallsLocked() {
	for room, session := range h.calls {
		if len(h.users[session.callerID]) > 0 {
			continue
		}
		alive := false
		for id := range session.invited {
			if len(h.users[id]) > 0 {
				alive = true
				break
			}
		}
		if !alive {
			delete(h.calls, room)
		}
	}
}
