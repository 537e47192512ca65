// Package call establishes and maintains the two-party audio/screen-share
// connection for a room, negotiating SDP and ICE over the relay.
package call

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/devcanvas/devcanvas/internal/media"
	"github.com/devcanvas/devcanvas/internal/relay"
	"github.com/devcanvas/devcanvas/internal/util"
)

// State is the negotiation state of a session.
type State int

const (
	StateIdle State = iota
	StateOffering
	StateAwaitingAnswer
	StateAnswering
	StateConnected
	StateFailed
	StateClosed
)

// Role is the side of the offer/answer exchange a session has taken.
type Role int

const (
	RoleNone Role = iota
	RoleInitiator
	RoleResponder
)

// DefaultOfferTimeout is the fallback before a session that has heard from
// nobody assumes it is alone and offers anyway.
const DefaultOfferTimeout = time.Second

// Topic is the slice of the relay surface the session needs. Satisfied by
// *relay.Topic; tests substitute a recorder.
type Topic interface {
	On(event string, fn func(relay.Envelope))
	Send(event string, payload any) error
	Close() error
}

// Config wires a session to its collaborators.
type Config struct {
	// LocalID is this participant's stable id; role election compares it
	// lexicographically against the peer's.
	LocalID string
	Topic   Topic
	Capture media.Capture

	// OnRemoteTrack receives each inbound media track.
	OnRemoteTrack func(*webrtc.TrackRemote)
	// OnConnectionState surfaces transport-level state transitions. No
	// automatic reconnection is attempted on failure; the recovery path is
	// a manual disconnect and rejoin.
	OnConnectionState func(webrtc.PeerConnectionState)

	// OfferTimeout overrides DefaultOfferTimeout.
	OfferTimeout time.Duration
}

// Session is one participant's half of a two-party call. Exactly one exists
// per participant per room. Role assignment is deterministic: sessions
// announce themselves on the signaling topic, and whichever has the
// lexicographically lower participant id offers. The timer exists only for
// the solo-room case where no announce ever arrives.
type Session struct {
	cfg Config
	pc  *webrtc.PeerConnection

	mu        sync.Mutex
	state     State
	role      Role
	peerID    string
	remoteSet bool
	pending   []webrtc.ICECandidateInit // candidates queued until the remote description lands

	audioTracks []*media.Track
	display     *media.Track
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender

	fallback  *time.Timer
	closeOnce sync.Once
	closeErr  error
}

// NewSession creates a session, wires it to the signaling topic, announces
// itself, and arms the fallback offer timer.
func NewSession(cfg Config) (*Session, error) {
	if cfg.OfferTimeout <= 0 {
		cfg.OfferTimeout = DefaultOfferTimeout
	}

	pc, err := newPeerConnection()
	if err != nil {
		return nil, err
	}

	s := &Session{cfg: cfg, pc: pc, state: StateIdle, role: RoleNone}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end of gathering
		}
		init := c.ToJSON()
		if err := cfg.Topic.Send(EventCandidate, candidatePayload{Candidate: &init}); err != nil {
			util.LogDebug("failed to send ICE candidate: %v", err)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		util.LogInfo("remote %s track received", track.Kind())
		if cfg.OnRemoteTrack != nil {
			cfg.OnRemoteTrack(track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("peer connection state: %s", state)
		s.mu.Lock()
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if s.state != StateClosed {
				s.state = StateConnected
			}
		case webrtc.PeerConnectionStateFailed:
			if s.state != StateClosed {
				s.state = StateFailed
			}
		}
		s.mu.Unlock()
		if cfg.OnConnectionState != nil {
			cfg.OnConnectionState(state)
		}
	})

	cfg.Topic.On(EventJoin, s.handleJoin)
	cfg.Topic.On(EventOffer, s.handleOffer)
	cfg.Topic.On(EventAnswer, s.handleAnswer)
	cfg.Topic.On(EventCandidate, s.handleCandidate)

	if err := cfg.Topic.Send(EventJoin, joinPayload{ParticipantID: cfg.LocalID}); err != nil {
		util.LogWarning("failed to announce join: %v", err)
	}

	// Solo-room fallback: if nobody announces and no offer arrives within
	// the window, offer anyway. The role is re-checked at fire time.
	s.fallback = time.AfterFunc(cfg.OfferTimeout, func() {
		s.mu.Lock()
		idle := s.role == RoleNone && s.state == StateIdle
		s.mu.Unlock()
		if idle {
			s.becomeInitiator()
		}
	})

	return s, nil
}

// State returns the current negotiation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Role returns the elected role.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// handleJoin learns the peer's id and resolves roles deterministically: the
// lower participant id initiates. The first time a peer is seen, the
// session re-announces so both sides converge on the same pair of ids.
func (s *Session) handleJoin(env relay.Envelope) {
	var p joinPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.ParticipantID == "" {
		util.LogWarning("dropping malformed join envelope: %v", err)
		return
	}
	if p.ParticipantID == s.cfg.LocalID {
		return
	}

	s.mu.Lock()
	firstSighting := s.peerID == ""
	if firstSighting {
		s.peerID = p.ParticipantID
	}
	elect := s.role == RoleNone && s.state == StateIdle
	initiator := elect && s.cfg.LocalID < s.peerID
	if elect && !initiator {
		s.role = RoleResponder
	}
	s.mu.Unlock()

	if firstSighting {
		if err := s.cfg.Topic.Send(EventJoin, joinPayload{ParticipantID: s.cfg.LocalID}); err != nil {
			util.LogWarning("failed to re-announce join: %v", err)
		}
	}
	if initiator {
		s.becomeInitiator()
	}
}

// becomeInitiator takes the Initiator role and publishes an offer.
func (s *Session) becomeInitiator() {
	s.mu.Lock()
	if s.role != RoleNone || s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.role = RoleInitiator
	s.state = StateOffering
	s.mu.Unlock()

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		s.fail("CreateOffer", err)
		return
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		s.fail("SetLocalDescription", err)
		return
	}
	if err := s.cfg.Topic.Send(EventOffer, offerPayload{
		Offer: &sessionDescription{Type: offer.Type.String(), SDP: offer.SDP},
	}); err != nil {
		s.fail("send offer", err)
		return
	}

	s.mu.Lock()
	if s.state == StateOffering {
		s.state = StateAwaitingAnswer
	}
	s.mu.Unlock()
}

// handleOffer answers a valid incoming offer. A session that has already
// taken the Initiator role ignores offers entirely, which is what prevents
// glare from producing two crossed answers.
func (s *Session) handleOffer(env relay.Envelope) {
	var p offerPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || !p.Offer.valid() {
		util.LogWarning("rejecting malformed offer from %s", env.Sender)
		return
	}

	s.mu.Lock()
	if s.role == RoleInitiator || s.state == StateClosed || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	s.role = RoleResponder
	s.state = StateAnswering
	s.mu.Unlock()

	if err := s.setRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  p.Offer.SDP,
	}); err != nil {
		s.fail("SetRemoteDescription", err)
		return
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		s.fail("CreateAnswer", err)
		return
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		s.fail("SetLocalDescription", err)
		return
	}
	if err := s.cfg.Topic.Send(EventAnswer, answerPayload{
		Answer: &sessionDescription{Type: answer.Type.String(), SDP: answer.SDP},
	}); err != nil {
		s.fail("send answer", err)
	}
}

// handleAnswer completes the exchange on the initiating side. Non-initiator
// sessions ignore answers.
func (s *Session) handleAnswer(env relay.Envelope) {
	var p answerPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || !p.Answer.valid() {
		util.LogWarning("rejecting malformed answer from %s", env.Sender)
		return
	}

	s.mu.Lock()
	initiator := s.role == RoleInitiator
	s.mu.Unlock()
	if !initiator {
		return
	}

	if err := s.setRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  p.Answer.SDP,
	}); err != nil {
		s.fail("SetRemoteDescription", err)
	}
}

// handleCandidate adds a remote ICE candidate, buffering it when the remote
// description has not landed yet. Buffered candidates flush in arrival
// order once it does.
func (s *Session) handleCandidate(env relay.Envelope) {
	var p candidatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Candidate == nil {
		util.LogWarning("dropping malformed ICE candidate from %s", env.Sender)
		return
	}

	s.mu.Lock()
	if !s.remoteSet {
		s.pending = append(s.pending, *p.Candidate)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.pc.AddICECandidate(*p.Candidate); err != nil {
		util.LogWarning("failed to add ICE candidate: %v", err)
	}
}

// setRemoteDescription applies the remote description and flushes any
// candidates that arrived ahead of it.
func (s *Session) setRemoteDescription(desc webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return err
	}

	s.mu.Lock()
	s.remoteSet = true
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, c := range queued {
		if err := s.pc.AddICECandidate(c); err != nil {
			util.LogWarning("failed to add queued ICE candidate: %v", err)
		}
	}
	return nil
}

func (s *Session) fail(op string, err error) {
	util.LogError("call negotiation failed at %s: %v", op, err)
	s.mu.Lock()
	if s.state != StateClosed {
		s.state = StateFailed
	}
	s.mu.Unlock()
}

// PendingCandidates returns how many candidates are waiting for the remote
// description.
func (s *Session) PendingCandidates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close stops local capture, closes the connection, and unsubscribes from
// the signaling topic. Safe to call any number of times; only the first
// does work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.fallback.Stop()

		s.mu.Lock()
		s.state = StateClosed
		tracks := s.audioTracks
		display := s.display
		s.audioTracks = nil
		s.display = nil
		s.mu.Unlock()

		for _, t := range tracks {
			t.Stop()
		}
		if display != nil {
			display.Stop()
		}

		s.closeErr = errors.Join(s.pc.Close(), s.cfg.Topic.Close())
	})
	return s.closeErr
}
