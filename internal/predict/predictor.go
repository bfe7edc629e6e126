// Package predict loads pre-trained classifiers and runs them on feature vectors.
package predict

import (
	"context"
	"fmt"

	"github.com/hyperjump/healthassist/internal/models"
)

// Predictor is an opaque binary classifier.
type Predictor interface {
	// Predict returns the class label (0 or 1) for one feature vector.
	Predict(ctx context.Context, features models.FeatureVector) (int, error)
	// NumFeatures is the input width the model was trained with.
	NumFeatures() int
	// Format names the artifact format, e.g. "onnx" or "logistic".
	Format() string
	Close() error
}

// checkInputWidth compares a graph input's declared shape with the schema
// width. The feature axis is the last dimension; a dynamic size (<= 0) is
// accepted and left to the per-call width check.
func checkInputWidth(name string, dims []int64, width int) error {
	if len(dims) == 0 {
		return fmt.Errorf("%w: input %q has no dimensions", models.ErrSchemaMismatch, name)
	}
	if last := dims[len(dims)-1]; last > 0 && last != int64(width) {
		return fmt.Errorf("%w: input %q takes %d features, schema has %d", models.ErrSchemaMismatch, name, last, width)
	}
	return nil
}
