//go:build yamnet

package classifier

import (
	_ "embed"
)

// yamnetModelData contains the YAMNet-class ONNX model embedded at build
// time.
//
// BUILD REQUIREMENT: internal/classifier/yamnet.onnx must exist before
// compiling with -tags yamnet. The repository does not ship the model
// file or a script to fetch it; place it there, then build with:
//
//	go build -tags yamnet ./...
//
//go:embed yamnet.onnx
var yamnetModelData []byte

//go:embed yamnet_labels.csv
var yamnetLabelsCSV string
