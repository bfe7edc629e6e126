//go:build cgo
// +build cgo

package predict

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/healthassist/internal/models"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// initRuntime initializes the ONNX Runtime environment once per process.
func initRuntime(libraryPath string) error {
	ortOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXPredictor runs a classifier exported with skl2onnx. It requires CGO and the onnxruntime shared library.
type ONNXPredictor struct {
	session     *ort.AdvancedSession
	width       int
	inputTensor *ort.Tensor[float32]
	labelTensor *ort.Tensor[int64]
	mu          sync.Mutex
}

// NewONNXPredictor opens a model from its serialized bytes. width is the
// schema's feature count; the graph's declared input width must match it.
// inputName and outputName are the graph's float input and label output.
func NewONNXPredictor(data []byte, width int, inputName, outputName, libraryPath string) (*ONNXPredictor, error) {
	if err := initRuntime(libraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty ONNX model", models.ErrUnreadableFile)
	}
	inputs, _, err := ort.GetInputOutputInfoWithONNXData(data)
	if err != nil {
		return nil, fmt.Errorf("%w: read ONNX graph: %v", models.ErrUnreadableFile, err)
	}
	found := false
	for _, info := range inputs {
		if info.Name != inputName {
			continue
		}
		found = true
		if err := checkInputWidth(info.Name, info.Dimensions, width); err != nil {
			return nil, err
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: ONNX graph has no input %q", models.ErrSchemaMismatch, inputName)
	}
	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(width)), make([]float32, width))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	labelTensor, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create label tensor: %w", err)
	}
	session, err := ort.NewAdvancedSessionWithONNXData(
		data,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{labelTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		labelTensor.Destroy()
		return nil, fmt.Errorf("%w: create ONNX session: %v", models.ErrUnreadableFile, err)
	}
	return &ONNXPredictor{
		session:     session,
		width:       width,
		inputTensor: inputTensor,
		labelTensor: labelTensor,
	}, nil
}

// Predict implements Predictor. Sessions share tensors, so calls are serialized.
func (p *ONNXPredictor) Predict(ctx context.Context, features models.FeatureVector) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(features) != p.width {
		return 0, fmt.Errorf("%w: got %d features, model expects %d", models.ErrSchemaMismatch, len(features), p.width)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return 0, fmt.Errorf("ONNX predictor is closed")
	}
	in := p.inputTensor.GetData()
	for i, v := range features {
		in[i] = float32(v)
	}
	if err := p.session.Run(); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}
	return int(p.labelTensor.GetData()[0]), nil
}

// NumFeatures implements Predictor.
func (p *ONNXPredictor) NumFeatures() int {
	return p.width
}

// Format implements Predictor.
func (p *ONNXPredictor) Format() string {
	return "onnx"
}

// Close destroys the session and tensors.
func (p *ONNXPredictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.session != nil {
		err = p.session.Destroy()
		p.session = nil
	}
	if p.inputTensor != nil {
		_ = p.inputTensor.Destroy()
		p.inputTensor = nil
	}
	if p.labelTensor != nil {
		_ = p.labelTensor.Destroy()
		p.labelTensor = nil
	}
	return err
}
