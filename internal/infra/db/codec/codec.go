// Package codec holds the column encodings shared by the SQL stores.
package codec

import (
	"encoding/json"
	"fmt"

	"mediaflow/internal/domain/model"
)

func EncodeSteps(steps []model.Step) ([]byte, error) {
	if steps == nil {
		steps = []model.Step{}
	}
	return json.Marshal(steps)
}

func DecodeSteps(b []byte) ([]model.Step, error) {
	var steps []model.Step
	if len(b) == 0 {
		return steps, nil
	}
	if err := json.Unmarshal(b, &steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	return steps, nil
}

func EncodeResults(rs []model.StepResult) ([]byte, error) {
	if rs == nil {
		rs = []model.StepResult{}
	}
	return json.Marshal(rs)
}

func DecodeResults(b []byte) ([]model.StepResult, error) {
	rs := []model.StepResult{}
	if len(b) == 0 {
		return rs, nil
	}
	if err := json.Unmarshal(b, &rs); err != nil {
		return nil, fmt.Errorf("decode step results: %w", err)
	}
	return rs, nil
}

// EncodeOptional marshals v, returning nil for a nil pointer so the column stays NULL.
func EncodeOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func DecodeOptional[T any](b []byte) (*T, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// NullString maps "" to a SQL NULL.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func NullPtr(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func Ptr(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
