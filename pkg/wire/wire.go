// Package wire defines the signaling protocol's JSON envelope: a flat
// struct with a string Type discriminator, the same pattern the
// teacher's internal/websocket.Command/CommandResult and
// n0remac-robot-webrtc's WebsocketMessage both use instead of a tagged
// enum encoding.
package wire

// PeerId identifies a connected signaling client. Generated as an
// 8-character base32 string (see NewPeerID) rather than a full UUID,
// since spec §6 only requires it be short enough to read aloud/type.
type PeerId string

// ConnectionId identifies one pending or established connection request.
type ConnectionId string

// Type values for the PeerToServer/ServerToPeer envelopes.
const (
	TypeID                = "id"
	TypeIceCandidate       = "ice_candidate"
	TypeOffer              = "offer"
	TypeAnswer             = "answer"
	TypeConnectToPeer      = "connect_to_peer"
	TypeAcceptConnection   = "accept_connection"
	TypeConnectionRequest  = "connection_request"
	TypeConnectionAccepted = "connection_accepted"
	TypeError              = "error"
)

// PeerToServer is the envelope a signaling.Client sends.
type PeerToServer struct {
	Type         string       `json:"type"`
	PeerId       PeerId       `json:"peer_id,omitempty"`
	ConnectionId ConnectionId `json:"connection_id,omitempty"`
	SDP          string       `json:"sdp,omitempty"`
	Candidate    string       `json:"candidate,omitempty"`
}

// ServerToPeer is the envelope a signaling.Server sends.
type ServerToPeer struct {
	Type         string       `json:"type"`
	PeerId       PeerId       `json:"peer_id,omitempty"`
	ConnectionId ConnectionId `json:"connection_id,omitempty"`
	SDP          string       `json:"sdp,omitempty"`
	Candidate    string       `json:"candidate,omitempty"`
	Error        string       `json:"error,omitempty"`
}
