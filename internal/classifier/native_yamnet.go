//go:build yamnet

package classifier

// NativeAvailable reports that the YAMNet ONNX backend is compiled in.
func NativeAvailable() bool { return true }

// NewNativeSession creates an OnnxSession.
func NewNativeSession(opts Options) (Session, error) {
	return NewOnnxSession(opts)
}
