package realtime

import "time"

type Config struct {
	ICEServers []ICEServerConfig
	PortRange  PortRange
	// PublicIPs are advertised as host candidates when the server sits
	// behind a 1:1 NAT.
	PublicIPs []string

	// MaxSessions caps concurrent capture sessions; zero means unlimited.
	MaxSessions int
	MaxSDPSize  int
	CaptureRate time.Duration
	BufferSizes BufferSizes
}

type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

type PortRange struct {
	Min int
	Max int
}

func (r PortRange) valid() bool {
	return r.Min > 0 && r.Max > r.Min && r.Max <= 65535
}

// BufferSizes sizes the per-session channels. The frame buffer stays small
// since only the newest frames matter for liveness.
type BufferSizes struct {
	Frames        int
	Events        int
	ICECandidates int
}

func (b BufferSizes) withDefaults() BufferSizes {
	if b.Frames <= 0 {
		b.Frames = 4
	}
	if b.Events <= 0 {
		b.Events = 64
	}
	if b.ICECandidates <= 0 {
		b.ICECandidates = 128
	}
	return b
}
