package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError reports every problem found in a Settings document at
// once, rather than failing at the first one. Grounded on the original
// validator's pattern of accumulating an errors list across all
// webhook-bearing sections before raising.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %d validation error(s): %s", len(e.Errors), strings.Join(e.Errors, "; "))
}

// Validate checks a Settings document against the invariants the rest of
// the system assumes: threshold in [0, 1], non-negative delay, webhook
// URLs absolute HTTP(S), VBAN ports in (0, 65535], and unique source ids
// within each source list. It returns a *ValidationError (never a plain
// error) so callers can range over Errors, or nil if the document is
// valid.
func Validate(s Settings) error {
	var errs []string

	if s.Global.Threshold < 0 || s.Global.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("global.threshold must be in [0, 1], got %v", s.Global.Threshold))
	}
	if s.Global.Delay < 0 {
		errs = append(errs, fmt.Sprintf("global.delay must be >= 0, got %v", s.Global.Delay))
	}

	if err := validateWebhookURL("microphone.webhook_url", s.Microphone.WebhookURL); err != "" {
		errs = append(errs, err)
	}
	if err := validateWebhookURL("vban.webhook_url", s.VBAN.WebhookURL); err != "" {
		errs = append(errs, err)
	}
	if err := validatePort("vban.port", s.VBAN.Port); err != "" {
		errs = append(errs, err)
	}

	seenRTSP := make(map[string]bool, len(s.RTSPSources))
	for i, src := range s.RTSPSources {
		label := fmt.Sprintf("rtsp_sources[%d]", i)
		if src.ID == "" {
			errs = append(errs, label+".id must not be empty")
		} else if seenRTSP[src.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is not unique", label, src.ID))
		}
		seenRTSP[src.ID] = true
		if err := validateWebhookURL(label+".webhook_url", src.WebhookURL); err != "" {
			errs = append(errs, err)
		}
	}

	seenVBAN := make(map[string]bool, len(s.SavedVBANSources))
	for i, src := range s.SavedVBANSources {
		label := fmt.Sprintf("saved_vban_sources[%d]", i)
		key := fmt.Sprintf("%s:%d:%s", src.IP, src.Port, src.StreamName)
		if seenVBAN[key] {
			errs = append(errs, fmt.Sprintf("%s duplicates ip/port/stream_name %q", label, key))
		}
		seenVBAN[key] = true
		if err := validatePort(label+".port", src.Port); err != "" {
			errs = append(errs, err)
		}
		if err := validateWebhookURL(label+".webhook_url", src.WebhookURL); err != "" {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}

// validateWebhookURL returns a non-empty error string if raw is set but
// not an absolute http(s) URL. An empty webhook URL is valid: it means
// no webhook is configured for that source.
func validateWebhookURL(field, raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Sprintf("%s must be an absolute http(s) URL, got %q", field, raw)
	}
	return ""
}

func validatePort(field string, port int) string {
	if port <= 0 || port > 65535 {
		return fmt.Sprintf("%s must be in (0, 65535], got %d", field, port)
	}
	return ""
}
