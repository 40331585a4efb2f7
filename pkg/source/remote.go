package source

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/framefit/passportcam/internal/log"
	"github.com/framefit/passportcam/pkg/pipeline"
)

// RemoteConfig configures a remote WebRTC camera reached through a
// GStreamer-style signalling server.
type RemoteConfig struct {
	// SignallingURL is the websocket endpoint, e.g. ws://camera.local:8443.
	SignallingURL string

	// ProducerName selects the producer on the signalling server.
	ProducerName string

	// ConnectTimeout bounds the whole handshake.
	ConnectTimeout time.Duration

	// DecodeInterval rate limits frame decoding.
	DecodeInterval time.Duration
}

// DefaultRemoteConfig returns the standard remote camera settings.
func DefaultRemoteConfig(url string) RemoteConfig {
	return RemoteConfig{
		SignallingURL:  url,
		ProducerName:   "boothcam",
		ConnectTimeout: 15 * time.Second,
		DecodeInterval: 50 * time.Millisecond,
	}
}

// Remote is a recv-only WebRTC camera source. It depacketizes the H264
// track and keeps only the newest decoded frame.
type Remote struct {
	cfg RemoteConfig

	ws      *websocket.Conn
	wsMu    sync.Mutex
	pc      *webrtc.PeerConnection
	decoder *h264Decoder
	cell    cell

	peerID     string
	producerID string
	sessionID  string

	trackReady chan struct{}

	mu     sync.Mutex
	closed bool
}

// DialRemote connects to the signalling server, negotiates the session, and
// waits for the video track to arrive.
func DialRemote(cfg RemoteConfig) (*Remote, error) {
	r := &Remote{
		cfg:        cfg,
		decoder:    newH264Decoder(cfg.DecodeInterval),
		trackReady: make(chan struct{}, 1),
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	var err error
	r.ws, _, err = dialer.Dial(cfg.SignallingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("source: signalling connect: %w", err)
	}

	if err := r.waitForWelcome(); err != nil {
		r.ws.Close()
		return nil, fmt.Errorf("source: welcome: %w", err)
	}
	if err := r.findProducer(); err != nil {
		r.ws.Close()
		return nil, fmt.Errorf("source: find producer: %w", err)
	}
	if err := r.createPeerConnection(); err != nil {
		r.ws.Close()
		return nil, fmt.Errorf("source: peer connection: %w", err)
	}
	if err := r.startSession(); err != nil {
		r.Close()
		return nil, fmt.Errorf("source: start session: %w", err)
	}

	go r.handleSignalling()

	select {
	case <-r.trackReady:
		log.Info("remote camera connected", "producer", cfg.ProducerName)
	case <-time.After(cfg.ConnectTimeout):
		r.Close()
		return nil, fmt.Errorf("source: timeout waiting for video track")
	}

	return r, nil
}

// Frame returns the newest decoded frame.
func (r *Remote) Frame() (pipeline.Frame, error) {
	return r.cell.get()
}

// Close tears the session down.
func (r *Remote) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	if r.pc != nil {
		r.pc.Close()
	}
	if r.ws != nil {
		r.ws.Close()
	}
	return nil
}

func (r *Remote) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Remote) waitForWelcome() error {
	r.ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := r.ws.ReadMessage()
	r.ws.SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	var welcome struct {
		Type   string `json:"type"`
		PeerID string `json:"peerId"`
	}
	if err := json.Unmarshal(msg, &welcome); err != nil {
		return err
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	r.peerID = welcome.PeerID
	return nil
}

func (r *Remote) findProducer() error {
	if err := r.writeJSON(map[string]string{"type": "list"}); err != nil {
		return err
	}

	r.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := r.ws.ReadMessage()
	r.ws.SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	var list struct {
		Type      string `json:"type"`
		Producers []struct {
			ID   string            `json:"id"`
			Meta map[string]string `json:"meta"`
		} `json:"producers"`
	}
	if err := json.Unmarshal(msg, &list); err != nil {
		return err
	}

	for _, p := range list.Producers {
		if p.Meta["name"] == r.cfg.ProducerName {
			r.producerID = p.ID
			return nil
		}
	}
	return fmt.Errorf("producer %q not found among %d producers",
		r.cfg.ProducerName, len(list.Producers))
}

func (r *Remote) createPeerConnection() error {
	var err error
	r.pc, err = webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}

	if _, err = r.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	r.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Debug("remote track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go r.consumeTrack(track)
		}
	})

	r.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			r.sendICECandidate(candidate)
		}
	})

	r.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("remote connection state", "state", state.String())
	})

	return nil
}

func (r *Remote) startSession() error {
	return r.writeJSON(map[string]string{
		"type":   "startSession",
		"peerId": r.producerID,
	})
}

func (r *Remote) handleSignalling() {
	for !r.isClosed() {
		_, msg, err := r.ws.ReadMessage()
		if err != nil {
			if !r.isClosed() {
				log.Warn("signalling read failed", "error", err)
			}
			return
		}

		var base struct {
			Type      string `json:"type"`
			SessionID string `json:"sessionId"`
		}
		json.Unmarshal(msg, &base)

		switch base.Type {
		case "sessionStarted":
			r.sessionID = base.SessionID
		case "peer":
			r.handlePeerMessage(msg)
		case "endSession":
			return
		}
	}
}

func (r *Remote) handlePeerMessage(msg []byte) {
	var peer struct {
		SDP *struct {
			Type string `json:"type"`
			SDP  string `json:"sdp"`
		} `json:"sdp"`
		ICE *struct {
			Candidate     string  `json:"candidate"`
			SDPMid        *string `json:"sdpMid"`
			SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
		} `json:"ice"`
	}
	if err := json.Unmarshal(msg, &peer); err != nil {
		log.Warn("bad peer message", "error", err)
		return
	}

	if peer.SDP != nil && peer.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  peer.SDP.SDP,
		}
		if err := r.pc.SetRemoteDescription(offer); err != nil {
			log.Warn("set remote description failed", "error", err)
			return
		}

		answer, err := r.pc.CreateAnswer(nil)
		if err != nil {
			log.Warn("create answer failed", "error", err)
			return
		}
		if err := r.pc.SetLocalDescription(answer); err != nil {
			log.Warn("set local description failed", "error", err)
			return
		}
		r.sendSDP(answer)
	}

	if peer.ICE != nil {
		r.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     peer.ICE.Candidate,
			SDPMid:        peer.ICE.SDPMid,
			SDPMLineIndex: peer.ICE.SDPMLineIndex,
		})
	}
}

func (r *Remote) sendSDP(sdp webrtc.SessionDescription) {
	r.writeJSON(map[string]any{
		"type":      "peer",
		"sessionId": r.sessionID,
		"sdp": map[string]string{
			"type": sdp.Type.String(),
			"sdp":  sdp.SDP,
		},
	})
}

func (r *Remote) sendICECandidate(candidate *webrtc.ICECandidate) {
	if r.sessionID == "" {
		return
	}
	init := candidate.ToJSON()
	r.writeJSON(map[string]any{
		"type":      "peer",
		"sessionId": r.sessionID,
		"ice": map[string]any{
			"candidate":     init.Candidate,
			"sdpMid":        init.SDPMid,
			"sdpMLineIndex": init.SDPMLineIndex,
		},
	})
}

func (r *Remote) writeJSON(v any) error {
	r.wsMu.Lock()
	defer r.wsMu.Unlock()
	return r.ws.WriteJSON(v)
}

// consumeTrack depacketizes RTP into access units. The marker bit closes an
// access unit; each complete unit goes to the decoder.
func (r *Remote) consumeTrack(track *webrtc.TrackRemote) {
	select {
	case r.trackReady <- struct{}{}:
	default:
	}

	var (
		unit []byte
		pkt  *rtp.Packet
		err  error
	)
	for !r.isClosed() {
		pkt, _, err = track.ReadRTP()
		if err != nil {
			return
		}
		unit = append(unit, pkt.Payload...)

		if !pkt.Marker {
			continue
		}
		r.decodeUnit(unit)
		unit = unit[:0]
	}
}

func (r *Remote) decodeUnit(unit []byte) {
	jpeg, err := r.decoder.decode(unit)
	if err != nil {
		log.Warn("frame decode failed", "error", err)
		return
	}
	if jpeg != nil {
		r.cell.put(jpeg)
	}
}
