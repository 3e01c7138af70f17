// Package config defines the persisted settings document (spec §3/§6),
// its atomic on-disk store, and its validation rules (spec §4.8).
package config

const (
	// DefaultThreshold is the default fused detection score threshold.
	DefaultThreshold = 0.3
	// DefaultDelay is the default per-source debounce interval in seconds.
	DefaultDelay = 1.0
	// DefaultVBANPort is the default VBAN receiver UDP port.
	DefaultVBANPort = 6980
)

// Global holds detection-wide tuning parameters.
type Global struct {
	Threshold float64 `json:"threshold"`
	Delay     float64 `json:"delay"`
}

// Microphone holds the local capture device configuration.
type Microphone struct {
	DeviceIndex int    `json:"device_index"`
	Enabled     bool   `json:"enabled"`
	WebhookURL  string `json:"webhook_url"`
	AudioSource string `json:"audio_source"`
}

// RTSPSource is one persisted RTSP ingest endpoint.
type RTSPSource struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// SavedVBANSource is one persisted (previously discovered or manually
// added) VBAN ingest endpoint.
type SavedVBANSource struct {
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	StreamName string `json:"stream_name"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// VBAN holds the default/last-used VBAN listener configuration, distinct
// from the list of saved sources above.
type VBAN struct {
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	StreamName string `json:"stream_name"`
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// Settings is the full persisted document.
type Settings struct {
	Global           Global            `json:"global"`
	Microphone       Microphone        `json:"microphone"`
	RTSPSources      []RTSPSource      `json:"rtsp_sources"`
	SavedVBANSources []SavedVBANSource `json:"saved_vban_sources"`
	VBAN             VBAN              `json:"vban"`
}

// Defaults returns the document used to seed a missing settings file and
// to fill in fields a partial or legacy document omits.
func Defaults() Settings {
	return Settings{
		Global: Global{
			Threshold: DefaultThreshold,
			Delay:     DefaultDelay,
		},
		Microphone: Microphone{
			DeviceIndex: 0,
			AudioSource: "default",
		},
		RTSPSources:      []RTSPSource{},
		SavedVBANSources: []SavedVBANSource{},
		VBAN: VBAN{
			IP:   "0.0.0.0",
			Port: DefaultVBANPort,
		},
	}
}
