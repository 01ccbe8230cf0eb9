package models

import "encoding/json"

// SocketEvent is the envelope exchanged over a realtime connection.
type SocketEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Socket event names, inbound and outbound.
const (
	EventJoinGroup    = "join-group"
	EventLeaveGroup   = "leave-group"
	EventSendMessage  = "send-message"
	EventTyping       = "typing"
	EventStopTyping   = "stop-typing"
	EventMarkRead     = "mark-read"
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"
	EventCallInvite   = "call:invite"
	EventCallAccept   = "call:accept"
	EventCallReject   = "call:reject"
	EventCallEnd      = "call:end"
	EventCallIncoming = "call:incoming"
	EventCallAccepted = "call:accepted"
	EventCallRejected = "call:rejected"
	EventCallEnded    = "call:ended"
	EventError        = "error"
)

// GroupEventPayload addresses a persisted group room.
type GroupEventPayload struct {
	GroupID int `json:"group_id"`
}

// RoomEventPayload addresses an arbitrary room by name.
type RoomEventPayload struct {
	Room string `json:"room"`
}

// CallInvitePayload starts a call attempt against specific users.
type CallInvitePayload struct {
	Room       string `json:"room"`
	Recipients []int  `json:"recipients"`
	CallerName string `json:"caller_name,omitempty"`
}

// CallAnswerPayload accepts or rejects an invite for a room.
type CallAnswerPayload struct {
	Room string `json:"room"`
}

// CallEndPayload terminates a call room.
type CallEndPayload struct {
	Room       string `json:"room"`
	Recipients []int  `json:"recipients"`
}

// CallIncoming is sent to invited recipients.
type CallIncoming struct {
	Room       string `json:"room"`
	From       int    `json:"from"`
	CallerName string `json:"caller_name,omitempty"`
}

// CallAnswered is sent back to the caller on accept/reject.
type CallAnswered struct {
	Room string `json:"room"`
	User int    `json:"user"`
}

// CallEnded is broadcast when a call room terminates.
type CallEnded struct {
	Room string `json:"room"`
}
