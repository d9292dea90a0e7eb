package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minkalla/valyze/internal/domain/model"
)

// Error types reported in FieldError.Type.
const (
	errTypeMissing     = "missing"
	errTypeJSONInvalid = "json_invalid"
	errTypeDict        = "dict_type"
	errTypeString      = "string_type"
	errTypeStringShort = "string_too_short"
	errTypeBool        = "bool_type"
)

// FieldError identifies one invalid field of a request body.
type FieldError struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// ValidationError lists every problem found in a request body.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		loc := make([]string, len(f.Loc))
		for j, l := range f.Loc {
			loc[j] = fmt.Sprint(l)
		}
		parts[i] = strings.Join(loc, ".") + ": " + f.Msg
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// decodeValuationRequest reads {"input_data": {...}} from r and checks it
// field by field. Every problem is reported, not only the first.
func decodeValuationRequest(w http.ResponseWriter, r *http.Request) (model.InputRecord, error) {
	const op = "api.decode_valuation_request"

	var body any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.InputRecord{}, WrapKind(op, ErrPayloadTooLarge, err)
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		return model.InputRecord{}, &ValidationError{Fields: []FieldError{{
			Loc: []any{"body"}, Msg: "JSON decode error: " + err.Error(), Type: errTypeJSONInvalid,
		}}}
	}
	if dec.More() {
		return model.InputRecord{}, &ValidationError{Fields: []FieldError{{
			Loc: []any{"body"}, Msg: "JSON decode error: trailing data after object", Type: errTypeJSONInvalid,
		}}}
	}

	v := &recordValidator{}
	obj, ok := body.(map[string]any)
	if !ok {
		v.add(errTypeDict, "Input should be a valid dictionary", "body")
		return model.InputRecord{}, v.err()
	}

	raw, present := obj["input_data"]
	if !present {
		v.add(errTypeMissing, "Field required", "body", "input_data")
		return model.InputRecord{}, v.err()
	}
	data, ok := raw.(map[string]any)
	if !ok {
		v.add(errTypeDict, "Input should be a valid dictionary", "body", "input_data")
		return model.InputRecord{}, v.err()
	}

	in := model.InputRecord{
		DataID:      v.requiredString(data, "data_id", true),
		Category:    v.requiredString(data, "category", false),
		ValuePoints: v.requiredObject(data, "value_points"),
		IsSensitive: v.optionalBool(data, "is_sensitive"),
		Source:      v.optionalString(data, "source"),
		Priority:    v.optionalString(data, "priority"),
	}
	if err := v.err(); err != nil {
		return model.InputRecord{}, err
	}
	return in, nil
}

type recordValidator struct {
	fields []FieldError
}

func (v *recordValidator) add(typ, msg string, loc ...any) {
	v.fields = append(v.fields, FieldError{Loc: loc, Msg: msg, Type: typ})
}

func (v *recordValidator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

func (v *recordValidator) requiredString(data map[string]any, key string, nonEmpty bool) string {
	raw, ok := data[key]
	if !ok || raw == nil {
		v.add(errTypeMissing, "Field required", "body", "input_data", key)
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		v.add(errTypeString, "Input should be a valid string", "body", "input_data", key)
		return ""
	}
	if nonEmpty && strings.TrimSpace(s) == "" {
		v.add(errTypeStringShort, "String should have at least 1 character", "body", "input_data", key)
		return ""
	}
	return s
}

func (v *recordValidator) requiredObject(data map[string]any, key string) map[string]any {
	raw, ok := data[key]
	if !ok {
		v.add(errTypeMissing, "Field required", "body", "input_data", key)
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		v.add(errTypeDict, "Input should be a valid dictionary", "body", "input_data", key)
		return nil
	}
	return m
}

func (v *recordValidator) optionalBool(data map[string]any, key string) bool {
	raw, ok := data[key]
	if !ok || raw == nil {
		return false
	}
	b, ok := raw.(bool)
	if !ok {
		v.add(errTypeBool, "Input should be a valid boolean", "body", "input_data", key)
		return false
	}
	return b
}

func (v *recordValidator) optionalString(data map[string]any, key string) *string {
	raw, ok := data[key]
	if !ok || raw == nil {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		v.add(errTypeString, "Input should be a valid string", "body", "input_data", key)
		return nil
	}
	return &s
}
