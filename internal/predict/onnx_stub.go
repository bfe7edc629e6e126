//go:build !cgo
// +build !cgo

package predict

import (
	"context"
	"errors"

	"github.com/hyperjump/healthassist/internal/models"
)

var errNoCGO = errors.New("ONNX models require CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXPredictor stub type when built without CGO (see onnx.go for real implementation).
type ONNXPredictor struct{}

// NewONNXPredictor returns an error when built without CGO (ONNX not available).
func NewONNXPredictor(_ []byte, _ int, _, _, _ string) (*ONNXPredictor, error) {
	return nil, errNoCGO
}

func (p *ONNXPredictor) Predict(_ context.Context, _ models.FeatureVector) (int, error) {
	return 0, errNoCGO
}

func (p *ONNXPredictor) NumFeatures() int { return 0 }

func (p *ONNXPredictor) Format() string { return "onnx" }

func (p *ONNXPredictor) Close() error { return nil }
