package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/healthassist/internal/models"
)

// Linear model kinds.
const (
	KindLogistic  = "logistic"
	KindLinearSVM = "linear_svm"
)

// Scaler is a fitted standard scaler: x' = (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `json:"mean" yaml:"mean"`
	Scale []float64 `json:"scale" yaml:"scale"`
}

// LinearModel is a linear classifier exported as coefficients, e.g. from a
// scikit-learn LogisticRegression or SVC(kernel="linear").
type LinearModel struct {
	Kind         string    `json:"kind" yaml:"kind"`
	Coefficients []float64 `json:"coefficients" yaml:"coefficients"`
	Intercept    float64   `json:"intercept" yaml:"intercept"`
	// Threshold is compared against the probability for logistic models and the
	// decision value for linear SVMs. Defaults are 0.5 and 0.
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Scaler    *Scaler  `json:"scaler,omitempty" yaml:"scaler,omitempty"`
}

// ParseLinearModel decodes a linear model artifact. ext selects JSON (".json") or YAML (".yaml", ".yml").
func ParseLinearModel(data []byte, ext string) (*LinearModel, error) {
	var m LinearModel
	var err error
	switch strings.ToLower(ext) {
	case ".json":
		err = json.Unmarshal(data, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("%w: unsupported linear model format %q", models.ErrUnreadableFile, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode linear model: %v", models.ErrUnreadableFile, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnreadableFile, err)
	}
	return &m, nil
}

func (m *LinearModel) validate() error {
	if m.Kind == "" {
		m.Kind = KindLogistic
	}
	if m.Kind != KindLogistic && m.Kind != KindLinearSVM {
		return fmt.Errorf("unknown linear model kind %q", m.Kind)
	}
	if len(m.Coefficients) == 0 {
		return fmt.Errorf("linear model has no coefficients")
	}
	if !allFinite(m.Coefficients) || !allFinite([]float64{m.Intercept}) {
		return fmt.Errorf("linear model has non-finite parameters")
	}
	if m.Scaler != nil {
		n := len(m.Coefficients)
		if len(m.Scaler.Mean) != n || len(m.Scaler.Scale) != n {
			return fmt.Errorf("scaler has %d/%d entries, want %d", len(m.Scaler.Mean), len(m.Scaler.Scale), n)
		}
		for i, s := range m.Scaler.Scale {
			if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
				return fmt.Errorf("scaler scale[%d] is %v", i, s)
			}
		}
	}
	return nil
}

// Decision returns w·x' + b.
func (m *LinearModel) Decision(features models.FeatureVector) float64 {
	z := m.Intercept
	for i, w := range m.Coefficients {
		x := features[i]
		if m.Scaler != nil {
			x = (x - m.Scaler.Mean[i]) / m.Scaler.Scale[i]
		}
		z += w * x
	}
	return z
}

// Predict implements Predictor.
func (m *LinearModel) Predict(ctx context.Context, features models.FeatureVector) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(features) != len(m.Coefficients) {
		return 0, fmt.Errorf("%w: got %d features, model expects %d", models.ErrSchemaMismatch, len(features), len(m.Coefficients))
	}
	z := m.Decision(features)
	score, threshold := z, 0.0
	if m.Kind == KindLogistic {
		score, threshold = sigmoid(z), 0.5
	}
	if m.Threshold != nil {
		threshold = *m.Threshold
	}
	if score > threshold {
		return 1, nil
	}
	return 0, nil
}

// NumFeatures implements Predictor.
func (m *LinearModel) NumFeatures() int {
	return len(m.Coefficients)
}

// Format implements Predictor.
func (m *LinearModel) Format() string {
	return m.Kind
}

// Close is a no-op for LinearModel.
func (m *LinearModel) Close() error {
	return nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
