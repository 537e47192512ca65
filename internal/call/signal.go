package call

import (
	"github.com/pion/webrtc/v4"
)

// Topic events exchanged on a room's signaling topic.
const (
	EventJoin      = "join"
	EventOffer     = "offer"
	EventAnswer    = "answer"
	EventCandidate = "ice-candidate"
)

// sessionDescription is the wire form of an SDP description.
type sessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// valid reports whether the description carries both a type and a transport
// description. Envelopes failing this are logged and dropped without any
// state transition.
func (d *sessionDescription) valid() bool {
	return d != nil && d.Type != "" && d.SDP != ""
}

type joinPayload struct {
	ParticipantID string `json:"participantId"`
}

type offerPayload struct {
	Offer *sessionDescription `json:"offer"`
}

type answerPayload struct {
	Answer *sessionDescription `json:"answer"`
}

type candidatePayload struct {
	Candidate *webrtc.ICECandidateInit `json:"candidate"`
}
