package metadata

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"
)

const (
	fieldName          = "name"
	fieldRowsUpdatedAt = "rowsUpdatedAt"
)

// RetrievalError means the metadata could not be obtained at all: the
// request failed, or the body was empty or not a JSON object.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	if e.Err == nil {
		return "metadata retrieval failed"
	}
	return "metadata retrieval failed: " + e.Err.Error()
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// MissingFieldError means the metadata object lacks a required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("metadata missing or incomplete (no %q value)", e.Field)
}

// Parse extracts the dataset name and last update time from a metadata
// document. rowsUpdatedAt is a POSIX timestamp in seconds.
func Parse(id string, body []byte) (Dataset, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Dataset{}, &RetrievalError{Err: errors.New("empty response body")}
	}

	_, dataType, _, err := jsonparser.Get(body)
	if err != nil {
		return Dataset{}, &RetrievalError{Err: errors.Wrap(err, "failed to parse the response body")}
	}
	if dataType != jsonparser.Object {
		return Dataset{}, &RetrievalError{Err: errors.Errorf("response is a JSON %s, not an object", dataType)}
	}

	keys := 0
	err = jsonparser.ObjectEach(body, func(_, _ []byte, _ jsonparser.ValueType, _ int) error {
		keys++
		return nil
	})
	if err != nil {
		return Dataset{}, &RetrievalError{Err: errors.Wrap(err, "failed to parse the response body")}
	}
	if keys == 0 {
		return Dataset{}, &RetrievalError{Err: errors.New("empty metadata object")}
	}

	name, err := stringField(body, fieldName)
	if err != nil {
		return Dataset{}, err
	}

	updated, err := timestampField(body, fieldRowsUpdatedAt)
	if err != nil {
		return Dataset{}, err
	}

	return Dataset{ID: id, Name: name, LastUpdatedAt: updated}, nil
}

func stringField(body []byte, field string) (string, error) {
	value, dataType, _, err := jsonparser.Get(body, field)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) || dataType == jsonparser.Null {
		return "", &MissingFieldError{Field: field}
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read metadata field %q", field)
	}
	if dataType != jsonparser.String {
		return "", errors.Errorf("metadata field %q is a %s, not a string", field, dataType)
	}
	s, err := jsonparser.ParseString(value)
	if err != nil {
		return "", errors.Wrapf(err, "failed to decode metadata field %q", field)
	}
	return s, nil
}

func timestampField(body []byte, field string) (time.Time, error) {
	value, dataType, _, err := jsonparser.Get(body, field)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) || dataType == jsonparser.Null {
		return time.Time{}, &MissingFieldError{Field: field}
	}
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "failed to read metadata field %q", field)
	}
	if dataType != jsonparser.Number {
		return time.Time{}, errors.Errorf("metadata field %q is a %s, not a number", field, dataType)
	}
	secs, err := jsonparser.ParseFloat(value)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "failed to decode metadata field %q", field)
	}
	whole, frac := math.Modf(secs)
	if math.IsNaN(whole) || whole < math.MinInt64 || whole >= math.MaxInt64 {
		return time.Time{}, &RetrievalError{Err: errors.Errorf("metadata field %q is out of range: %s", field, value)}
	}
	return time.Unix(int64(whole), int64(frac*float64(time.Second))), nil
}
