package domain

import "encoding/json"

// EventType enumerates the closed set of signaling wire events. The set is
// fixed up front; new call features extend payloads, not the namespace.
type EventType string

const (
	// client -> server
	EventRegister     EventType = "register"
	EventCallOffer    EventType = "call-offer"
	EventCallAnswer   EventType = "call-answer"
	EventICECandidate EventType = "ice-candidate"
	EventSendMessage  EventType = "send-message"
	EventJoinGroup    EventType = "join-group"
	EventLeaveGroup   EventType = "leave-group"
	EventGroupMessage EventType = "send-group-message"

	// client -> server -> client
	EventCallRejected EventType = "call-rejected"
	EventEndCall      EventType = "end-call"

	// server -> client
	EventIncomingCall    EventType = "incoming-call"
	EventCallAccepted    EventType = "call-accepted"
	EventPeerNegotiation EventType = "peer-negotiation-needed"
	EventUserOffline     EventType = "user-offline"
	EventReceiveMessage  EventType = "receive-message"
	EventReceiveGroup    EventType = "receive-group-message"
)

// Envelope is the one wire shape every signaling event travels in.
// Offer/Answer/Candidate/Message stay raw: the relay forwards them verbatim
// and only the two clients ever parse them.
type Envelope struct {
	Type      EventType       `json:"type"`
	From      Identity        `json:"from,omitempty"`
	To        Identity        `json:"to,omitempty"`
	CallID    CallID          `json:"callId,omitempty"`
	UserID    Identity        `json:"userId,omitempty"`
	GroupID   string          `json:"groupId,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
}
