//go:build !yamnet

package classifier

import "errors"

// ErrNativeUnavailable indicates the YAMNet backend is not compiled in.
var ErrNativeUnavailable = errors.New("classifier: yamnet backend not available (build without -tags yamnet)")

// NativeAvailable reports that no native backend is compiled in.
func NativeAvailable() bool { return false }

// NewNativeSession returns an error when built without the yamnet tag.
func NewNativeSession(Options) (Session, error) {
	return nil, ErrNativeUnavailable
}
