package vban

import (
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultPort is the standard VBAN receive port.
	DefaultPort = 6980
	// maxPacketSize bounds a single recv; VBAN payloads never exceed it.
	maxPacketSize = 2048
	// socketTimeout bounds each blocking recv so Stop can be observed
	// promptly and stale registry entries get swept regularly.
	socketTimeout = 500 * time.Millisecond
	// staleAfter is how long a registry entry survives without a packet.
	staleAfter = 5 * time.Second
	// targetSampleRate is the rate frames are delivered to consumers at.
	targetSampleRate = 16000
	// TargetSampleRate is targetSampleRate exported for callers (the
	// supervisor) that need to tag delivered frames with their rate.
	TargetSampleRate = targetSampleRate
)

// state is the receiver's lifecycle state (spec §4.3: Idle -> Bound ->
// Running -> Stopping -> Idle).
type state int

const (
	stateIdle state = iota
	stateBound
	stateRunning
	stateStopping
)

// EnabledFilter reports whether audio from (ip, streamName) should be
// forwarded to consumers. The receiver consults it once per packet; the
// caller is expected to cache expensively-computed answers (spec's 5 s
// settings cache TTL lives in the supervisor, not here).
type EnabledFilter func(ip, streamName string) bool

// FrameHandler receives a 1-second mono frame at targetSampleRate,
// tagged with the source id and a wall-clock timestamp. Must not block.
type FrameHandler func(sourceID string, frame []float32, timestamp time.Time)

// Receiver is the VBAN UDP ingest loop plus discovered-source registry.
type Receiver struct {
	Port    int
	Enabled EnabledFilter
	OnFrame FrameHandler
	Logger  *slog.Logger

	mu    sync.Mutex
	state state
	conn  *net.UDPConn
	done  chan struct{}

	regMu   sync.Mutex
	sources map[string]*sourceEntry
	accum   map[string][]float32
}

type sourceEntry struct {
	IP         string
	Port       int
	StreamName string
	SampleRate int
	Channels   int
	LastSeen   time.Time
}

// DiscoveredSource is a snapshot of one registry entry, returned by
// Sources so callers never see live internal state.
type DiscoveredSource struct {
	IP         string
	Port       int
	StreamName string
	SampleRate int
	Channels   int
	LastSeen   time.Time
}

// New creates a Receiver bound to the given port (DefaultPort if zero).
func New(port int, enabled EnabledFilter, onFrame FrameHandler, logger *slog.Logger) *Receiver {
	if port == 0 {
		port = DefaultPort
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		Port:    port,
		Enabled: enabled,
		OnFrame: onFrame,
		Logger:  logger.With("component", "vban"),
		sources: make(map[string]*sourceEntry),
		accum:   make(map[string][]float32),
	}
}

// Start binds the socket and launches the ingest loop. Idempotent: a
// second Start while Running is a no-op.
func (r *Receiver) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateRunning {
		return nil
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: r.Port})
	if err != nil {
		return err
	}
	r.conn = conn
	r.state = stateBound
	r.done = make(chan struct{})

	r.state = stateRunning
	go r.listenLoop(conn, r.done)
	return nil
}

// Stop closes the socket and waits up to 1 s for the ingest loop to
// exit. Idempotent: stopping while Idle is a no-op.
func (r *Receiver) Stop() {
	r.mu.Lock()
	if r.state == stateIdle || r.state == stateStopping {
		r.mu.Unlock()
		return
	}
	r.state = stateStopping
	conn := r.conn
	done := r.done
	r.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(1 * time.Second):
			r.Logger.Warn("vban ingest loop did not exit within grace period")
		}
	}

	r.mu.Lock()
	r.state = stateIdle
	r.conn = nil
	r.mu.Unlock()
}

func (r *Receiver) listenLoop(conn *net.UDPConn, done chan struct{}) {
	defer close(done)
	buf := make([]byte, maxPacketSize)

	for {
		conn.SetReadDeadline(time.Now().Add(socketTimeout))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				r.evictStale()
				continue
			}
			// Socket closed by Stop, or a fatal transport error either way.
			return
		}
		r.handlePacket(buf[:n], addr)
	}
}

func (r *Receiver) handlePacket(packet []byte, addr *net.UDPAddr) {
	header, payload, err := ParseHeader(packet)
	if err != nil {
		r.Logger.Warn("malformed vban packet", "error", err, "from", addr.String())
		return
	}

	key := registryKey(addr.IP.String(), header.StreamName)
	r.regMu.Lock()
	r.sources[key] = &sourceEntry{
		IP:         addr.IP.String(),
		Port:       addr.Port,
		StreamName: header.StreamName,
		SampleRate: header.SampleRate,
		Channels:   header.Channels,
		LastSeen:   time.Now(),
	}
	r.regMu.Unlock()

	if r.Enabled != nil && !r.Enabled(addr.IP.String(), header.StreamName) {
		return
	}

	samples := DecodePCM16(payload)
	samples = Downmix(samples, header.Channels)
	samples = Resample(samples, header.SampleRate, targetSampleRate)

	r.regMu.Lock()
	r.accum[key] = append(r.accum[key], samples...)
	var frame []float32
	if len(r.accum[key]) >= targetSampleRate {
		frame = r.accum[key][:targetSampleRate]
		r.accum[key] = r.accum[key][targetSampleRate:]
	}
	r.regMu.Unlock()

	if frame != nil && r.OnFrame != nil {
		sourceID := "vban:" + addr.IP.String() + ":" + strconv.Itoa(addr.Port) + ":" + header.StreamName
		r.OnFrame(sourceID, frame, time.Now())
	}
}

func (r *Receiver) evictStale() {
	cutoff := time.Now().Add(-staleAfter)
	r.regMu.Lock()
	defer r.regMu.Unlock()
	for key, entry := range r.sources {
		if entry.LastSeen.Before(cutoff) {
			delete(r.sources, key)
			delete(r.accum, key)
		}
	}
}

// Sources returns a snapshot of registry entries last seen within
// window of now, matching get_sources(window).
func (r *Receiver) Sources(window time.Duration) []DiscoveredSource {
	cutoff := time.Now().Add(-window)
	r.regMu.Lock()
	defer r.regMu.Unlock()

	out := make([]DiscoveredSource, 0, len(r.sources))
	for _, entry := range r.sources {
		if entry.LastSeen.After(cutoff) {
			out = append(out, DiscoveredSource{
				IP:         entry.IP,
				Port:       entry.Port,
				StreamName: entry.StreamName,
				SampleRate: entry.SampleRate,
				Channels:   entry.Channels,
				LastSeen:   entry.LastSeen,
			})
		}
	}
	return out
}

func registryKey(ip, streamName string) string {
	return ip + "_" + streamName
}
