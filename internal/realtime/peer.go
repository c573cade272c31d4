package realtime

import (
	"log/slog"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Peer receives the camera track of one capture client.
type Peer struct {
	pc  *webrtc.PeerConnection
	log *slog.Logger

	mu          sync.RWMutex
	videoSSRC   webrtc.SSRC
	onVideo     func(pkt *rtp.Packet, mimeType string)
	onConnected func()
	onFailed    func()
}

func NewPeer(pc *webrtc.PeerConnection, log *slog.Logger) (*Peer, error) {
	if log == nil {
		log = slog.Default()
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return nil, err
	}

	p := &Peer{
		pc:  pc,
		log: log.With("component", "rtc-peer"),
	}

	pc.OnTrack(func(remoteTrack *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		codec := remoteTrack.Codec()
		p.log.Info("track received",
			"kind", remoteTrack.Kind().String(),
			"codec", codec.MimeType,
			"clock_rate", codec.ClockRate)

		if remoteTrack.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}

		p.mu.Lock()
		p.videoSSRC = remoteTrack.SSRC()
		p.mu.Unlock()

		go drainRTCP(receiver)
		go p.readIncomingVideo(remoteTrack)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.mu.RLock()
		onConnected := p.onConnected
		onFailed := p.onFailed
		p.mu.RUnlock()

		switch state {
		case webrtc.PeerConnectionStateConnected:
			if onConnected != nil {
				onConnected()
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			if onFailed != nil {
				onFailed()
			}
		}
	})

	return p, nil
}

func drainRTCP(receiver *webrtc.RTPReceiver) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := receiver.Read(buf); err != nil {
			return
		}
	}
}

func (p *Peer) readIncomingVideo(track *webrtc.TrackRemote) {
	mimeType := track.Codec().MimeType
	packets := 0
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			p.log.Debug("video track ended", "packets", packets, "error", err)
			return
		}
		packets++

		p.mu.RLock()
		cb := p.onVideo
		p.mu.RUnlock()

		if cb != nil {
			cb(pkt, mimeType)
		}
	}
}

// RequestKeyFrame asks the sender for a new keyframe via RTCP PLI.
func (p *Peer) RequestKeyFrame() {
	p.mu.RLock()
	ssrc := p.videoSSRC
	p.mu.RUnlock()

	if ssrc == 0 {
		return
	}
	if err := p.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}}); err != nil {
		p.log.Debug("keyframe request failed", "error", err)
	}
}

func (p *Peer) SetOffer(sdp string) error {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}
	return p.pc.SetRemoteDescription(offer)
}

func (p *Peer) CreateAnswer() (string, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *Peer) OnVideo(fn func(pkt *rtp.Packet, mimeType string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onVideo = fn
}

func (p *Peer) OnConnected(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConnected = fn
}

func (p *Peer) OnFailed(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFailed = fn
}

func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

func (p *Peer) OnDataChannel(fn func(*webrtc.DataChannel)) {
	p.pc.OnDataChannel(fn)
}

func (p *Peer) Close() error {
	return p.pc.Close()
}
