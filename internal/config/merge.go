package config

// Merge fills any zero-valued scalar field of saved from defaults and
// replaces nil slice fields outright, mirroring the recursive
// default/saved merge the original settings loader performed before
// Go types existed to do it at compile time. Non-empty slices in saved
// are trusted as-is: a source list the user persisted, even if it
// later becomes empty, is a deliberate state rather than "unset".
func Merge(defaults, saved Settings) Settings {
	out := saved

	if out.Global.Threshold == 0 {
		out.Global.Threshold = defaults.Global.Threshold
	}
	if out.Global.Delay == 0 {
		out.Global.Delay = defaults.Global.Delay
	}

	if out.Microphone.AudioSource == "" {
		out.Microphone.AudioSource = defaults.Microphone.AudioSource
	}

	if out.RTSPSources == nil {
		out.RTSPSources = defaults.RTSPSources
	}
	if out.SavedVBANSources == nil {
		out.SavedVBANSources = defaults.SavedVBANSources
	}

	if out.VBAN.IP == "" {
		out.VBAN.IP = defaults.VBAN.IP
	}
	if out.VBAN.Port == 0 {
		out.VBAN.Port = defaults.VBAN.Port
	}

	return out
}
