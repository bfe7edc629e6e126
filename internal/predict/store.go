package predict

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/healthassist/internal/models"
	"github.com/hyperjump/healthassist/internal/schema"
)

// Default ONNX tensor names produced by skl2onnx.
const (
	DefaultInputName  = "float_input"
	DefaultOutputName = "label"
)

// ModelExtensions are tried in order when a model path is not configured.
var ModelExtensions = []string{".onnx", ".json", ".yaml", ".yml"}

var defaultBaseNames = map[string]string{
	schema.Diabetes:   "diabetes_model",
	schema.Heart:      "heart_disease_model",
	schema.Parkinsons: "parkinsons_model",
}

// ModelSpec locates one model artifact.
type ModelSpec struct {
	Disease    string
	Path       string
	SHA256     string
	InputName  string
	OutputName string
}

// ModelInfo describes a loaded model.
type ModelInfo struct {
	Disease  string `json:"disease"`
	Format   string `json:"format"`
	Path     string `json:"path,omitempty"`
	Features int    `json:"features"`
}

// Store holds one classifier per disease. It is immutable after construction
// and safe for concurrent use.
type Store struct {
	predictors map[string]Predictor
	info       map[string]ModelInfo
}

// StoreOption configures LoadStore.
type StoreOption func(*loadOptions)

type loadOptions struct {
	logger      *zap.Logger
	libraryPath string
}

// WithLogger logs each model as it is loaded.
func WithLogger(l *zap.Logger) StoreOption {
	return func(o *loadOptions) { o.logger = l }
}

// WithONNXLibrary sets the onnxruntime shared library path.
func WithONNXLibrary(path string) StoreOption {
	return func(o *loadOptions) { o.libraryPath = path }
}

// ResolvePath returns the artifact for disease inside dir, trying each of
// ModelExtensions on the conventional base name (e.g. diabetes_model.onnx).
func ResolvePath(dir, disease string) (string, error) {
	base, ok := defaultBaseNames[disease]
	if !ok {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownDisease, disease)
	}
	for _, ext := range ModelExtensions {
		p := filepath.Join(dir, base+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: no %s.{onnx,json,yaml} in %s", models.ErrMissingModel, base, dir)
}

// LoadStore loads every spec. Any failure aborts loading and releases the
// models already opened.
func LoadStore(specs []ModelSpec, opts ...StoreOption) (*Store, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}
	predictors := make(map[string]Predictor, len(specs))
	paths := make(map[string]string, len(specs))
	closeAll := func() {
		for _, p := range predictors {
			_ = p.Close()
		}
	}
	for _, spec := range specs {
		p, err := loadModel(spec, o)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("load %s model: %w", spec.Disease, err)
		}
		predictors[spec.Disease] = p
		paths[spec.Disease] = spec.Path
		if o.logger != nil {
			o.logger.Info("model loaded",
				zap.String("disease", spec.Disease),
				zap.String("path", spec.Path),
				zap.String("format", p.Format()),
				zap.Int("features", p.NumFeatures()))
		}
	}
	s, err := NewStore(predictors)
	if err != nil {
		closeAll()
		return nil, err
	}
	for d, p := range paths {
		info := s.info[d]
		info.Path = p
		s.info[d] = info
	}
	return s, nil
}

// NewStore wraps already constructed predictors, checking each one's input
// width against its disease schema.
func NewStore(predictors map[string]Predictor) (*Store, error) {
	s := &Store{
		predictors: make(map[string]Predictor, len(predictors)),
		info:       make(map[string]ModelInfo, len(predictors)),
	}
	for disease, p := range predictors {
		sch, err := schema.Lookup(disease)
		if err != nil {
			return nil, err
		}
		if p.NumFeatures() != sch.Width() {
			return nil, fmt.Errorf("%w: %s model expects %d features, schema has %d",
				models.ErrSchemaMismatch, sch.Disease, p.NumFeatures(), sch.Width())
		}
		s.predictors[sch.Disease] = p
		s.info[sch.Disease] = ModelInfo{Disease: sch.Disease, Format: p.Format(), Features: p.NumFeatures()}
	}
	return s, nil
}

func loadModel(spec ModelSpec, o *loadOptions) (Predictor, error) {
	sch, err := schema.Lookup(spec.Disease)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(spec.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrMissingModel, spec.Path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", models.ErrUnreadableFile, spec.Path, err)
	}
	if spec.SHA256 != "" {
		if err := verifyChecksum(data, spec.SHA256); err != nil {
			return nil, err
		}
	}
	ext := strings.ToLower(filepath.Ext(spec.Path))
	switch ext {
	case ".onnx":
		in, out := spec.InputName, spec.OutputName
		if in == "" {
			in = DefaultInputName
		}
		if out == "" {
			out = DefaultOutputName
		}
		p, err := NewONNXPredictor(data, sch.Width(), in, out, o.libraryPath)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ".json", ".yaml", ".yml":
		m, err := ParseLinearModel(data, ext)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unsupported model format %q", models.ErrUnreadableFile, ext)
	}
}

func verifyChecksum(data []byte, want string) error {
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, strings.TrimSpace(want)) {
		return fmt.Errorf("%w: sha256 mismatch: got %s", models.ErrUnreadableFile, got)
	}
	return nil
}

// Predict runs the disease classifier. The vector must match the schema width.
func (s *Store) Predict(ctx context.Context, disease string, features models.FeatureVector) (int, error) {
	key, err := schema.Canonical(disease)
	if err != nil {
		return 0, err
	}
	p, ok := s.predictors[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", models.ErrMissingModel, key)
	}
	if len(features) != p.NumFeatures() {
		return 0, fmt.Errorf("%w: got %d features, %s model expects %d",
			models.ErrSchemaMismatch, len(features), key, p.NumFeatures())
	}
	label, err := p.Predict(ctx, features)
	if err != nil {
		return 0, err
	}
	if label != 0 && label != 1 {
		return 0, fmt.Errorf("%s model returned unexpected label %d", key, label)
	}
	return label, nil
}

// Has reports whether a model is loaded for disease.
func (s *Store) Has(disease string) bool {
	key, err := schema.Canonical(disease)
	if err != nil {
		return false
	}
	_, ok := s.predictors[key]
	return ok
}

// Models returns info for each loaded model, sorted by disease.
func (s *Store) Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(s.info))
	for _, i := range s.info {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Disease < out[b].Disease })
	return out
}

// Close releases every model.
func (s *Store) Close() error {
	var firstErr error
	for _, p := range s.predictors {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
