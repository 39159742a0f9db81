// Package ml wraps the trained LightGBM risk model. The model text dump ships
// with a meta.json sidecar carrying the training-time feature order and the
// category vocabularies, which is what lets the engineered string categories
// be encoded exactly as they were during training.
package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/dmitryikh/leaves"
	"github.com/tarterware/roadrisk/internal/features"
	t "github.com/tarterware/roadrisk/internal/types"
)

// Predictor scores engineered feature tables, one score per row. The service
// receives one by injection; implementations must be safe for concurrent use.
type Predictor interface {
	Predict(tbl *features.Table) ([]float64, error)
}

// Meta is the model sidecar: feature columns in training order, and the
// category vocabulary for each categorical column.
type Meta struct {
	Features    []string            `json:"features"`
	Categorical map[string][]string `json:"categorical"`
}

type LightGBM struct {
	model *leaves.Ensemble
	meta  Meta
	vocab map[string]map[string]int
}

// Load reads and deserializes the model artifact and its sidecar.
func Load(modelPath, metaPath string) (*LightGBM, error) {
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("reading model meta %v: %w", metaPath, err)
	}
	var meta Meta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("unmarshalling model meta %v: %w", metaPath, err)
	}

	model, err := leaves.LGEnsembleFromFile(modelPath, false)
	if err != nil {
		return nil, fmt.Errorf("loading model %v: %w", modelPath, err)
	}

	if model.NFeatures() != len(meta.Features) {
		return nil, t.ModelSchemaError{Msg: fmt.Sprintf(
			"model expects %d features but meta lists %d", model.NFeatures(), len(meta.Features))}
	}

	vocab := make(map[string]map[string]int, len(meta.Categorical))
	for col, categories := range meta.Categorical {
		codes := make(map[string]int, len(categories))
		for i, c := range categories {
			codes[c] = i
		}
		vocab[col] = codes
	}

	return &LightGBM{model: model, meta: meta, vocab: vocab}, nil
}

var (
	sharedOnce sync.Once
	sharedGBM  *LightGBM
	sharedErr  error
)

// Shared loads the model at most once per process and hands out the same
// immutable instance afterwards. Concurrent callers never observe a
// half-initialized model.
func Shared(modelPath, metaPath string) (*LightGBM, error) {
	sharedOnce.Do(func() {
		sharedGBM, sharedErr = Load(modelPath, metaPath)
	})
	return sharedGBM, sharedErr
}

func (m *LightGBM) Predict(tbl *features.Table) ([]float64, error) {
	scores := make([]float64, tbl.NumRows())
	for i := range scores {
		vec, err := m.vector(tbl, i)
		if err != nil {
			return nil, err
		}
		scores[i] = m.model.PredictSingle(vec, 0)
	}
	return scores, nil
}

// vector encodes one table row in the model's training-time feature order.
// Categorical strings become their vocabulary code; a category the model has
// never seen encodes as NaN and takes LightGBM's missing-value path.
func (m *LightGBM) vector(tbl *features.Table, row int) ([]float64, error) {
	vec := make([]float64, len(m.meta.Features))
	for j, name := range m.meta.Features {
		if !tbl.HasColumn(name) {
			return nil, t.ModelSchemaError{Msg: fmt.Sprintf("feature table missing column %q", name)}
		}
		v := tbl.Value(name, row)

		if codes, ok := m.vocab[name]; ok {
			if !tbl.IsCategorical(name) {
				return nil, t.ModelSchemaError{Msg: fmt.Sprintf("column %q not marked categorical", name)}
			}
			s, ok := v.(string)
			if !ok {
				return nil, t.ModelSchemaError{Msg: fmt.Sprintf("categorical column %q row %d holds %T", name, row, v)}
			}
			code, ok := codes[s]
			if !ok {
				vec[j] = math.NaN()
			} else {
				vec[j] = float64(code)
			}
			continue
		}

		switch n := v.(type) {
		case float64:
			vec[j] = n
		case int:
			vec[j] = float64(n)
		default:
			return nil, t.ModelSchemaError{Msg: fmt.Sprintf("numeric column %q row %d holds %T", name, row, v)}
		}
	}
	return vec, nil
}
