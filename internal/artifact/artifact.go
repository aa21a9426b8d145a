// Package artifact persists the trained scaler and forest as one versioned
// bundle so the two can never be loaded out of step.
package artifact

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/evaluation"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/ml/forest"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/ml/scaler"
)

// Bundle is the single persisted training output.
type Bundle struct {
	ID            string    `json:"id"`
	SchemaVersion string    `json:"schemaVersion"`
	Features      []string  `json:"features"`
	CreatedAt     time.Time `json:"createdAt"`

	Scaler *scaler.Params `json:"scaler"`
	Model  *forest.Model  `json:"model"`

	// ScalerDigest is the fingerprint of Scaler taken when the model was fit.
	ScalerDigest string `json:"scalerDigest"`

	// Report is the held-out evaluation; nil when training skipped it.
	Report *evaluation.Report `json:"report,omitempty"`

	TrainRows int `json:"trainRows"`
}

// New assembles a bundle for the current schema.
func New(sc *scaler.Params, model *forest.Model, report *evaluation.Report, trainRows int) *Bundle {
	return &Bundle{
		ID:            uuid.New().String(),
		SchemaVersion: domain.SchemaVersion,
		Features:      domain.FeatureNames(),
		CreatedAt:     time.Now().UTC(),
		Scaler:        sc,
		Model:         model,
		ScalerDigest:  sc.Digest(),
		Report:        report,
		TrainRows:     trainRows,
	}
}

// Validate checks that the bundle matches the running schema and that
// its scaler and model belong together.
func (b *Bundle) Validate() error {
	if b.SchemaVersion != domain.SchemaVersion {
		return &domain.ArtifactMismatchError{Field: "schema_version", Expected: domain.SchemaVersion, Actual: b.SchemaVersion}
	}
	want := strings.Join(domain.FeatureColumns[:], ",")
	if got := strings.Join(b.Features, ","); got != want {
		return &domain.ArtifactMismatchError{Field: "features", Expected: want, Actual: got}
	}
	if b.Scaler == nil || b.Model == nil {
		return &domain.ArtifactMismatchError{Field: "contents", Expected: "scaler and model", Actual: "incomplete bundle"}
	}
	if err := b.Scaler.Validate(); err != nil {
		return fmt.Errorf("%w: scaler: %v", domain.ErrArtifactMismatch, err)
	}
	if err := b.Model.Validate(); err != nil {
		return fmt.Errorf("%w: model: %v", domain.ErrArtifactMismatch, err)
	}
	if b.Scaler.Width() != domain.FeatureCount {
		return &domain.ArtifactMismatchError{Field: "scaler_width", Expected: strconv.Itoa(domain.FeatureCount), Actual: strconv.Itoa(b.Scaler.Width())}
	}
	if b.Model.Features != domain.FeatureCount {
		return &domain.ArtifactMismatchError{Field: "model_features", Expected: strconv.Itoa(domain.FeatureCount), Actual: strconv.Itoa(b.Model.Features)}
	}
	if digest := b.Scaler.Digest(); digest != b.ScalerDigest {
		return &domain.ArtifactMismatchError{Field: "scaler_digest", Expected: b.ScalerDigest, Actual: digest}
	}
	return nil
}

// Info summarizes the bundle for the API.
func (b *Bundle) Info() domain.ModelInfo {
	info := domain.ModelInfo{
		BundleID:      b.ID,
		SchemaVersion: b.SchemaVersion,
		TrainedAt:     b.CreatedAt,
		TrainRows:     b.TrainRows,
	}
	if b.Model != nil {
		info.Trees = len(b.Model.Trees)
		info.MaxDepth = b.Model.Params.MaxDepth
	}
	if b.Report != nil {
		info.Accuracy = b.Report.Accuracy
	}
	return info
}

// Encode writes the bundle as zstd-compressed JSON.
func Encode(w io.Writer, b *Bundle) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(b); err != nil {
		enc.Close()
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	return enc.Close()
}

// Decode reads and validates a bundle written by Encode.
func Decode(r io.Reader) (*Bundle, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	defer dec.Close()

	var b Bundle
	if err := json.NewDecoder(dec).Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: failed to decode bundle: %v", domain.ErrArtifactMismatch, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Save writes the bundle atomically: a temp file in the target directory is
// fsynced and renamed over path. A failure leaves any existing file intact.
func Save(path string, b *Bundle) (err error) {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid bundle: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, b); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync bundle: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close bundle: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to install bundle: %w", err)
	}
	return nil
}

// Load reads and validates the bundle at path.
func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
