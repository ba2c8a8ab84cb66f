// Package validation checks submitted batches before they are admitted.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cyderes/employee-batch-service/internal/apperrors"
	"github.com/cyderes/employee-batch-service/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseBatch decodes and validates a raw request body. Phone numbers are not
// checked here; they are classified per record during processing.
func ParseBatch(raw []byte) ([]models.BatchRecord, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, apperrors.EmptyBody()
	}

	records, err := decodeRecords(raw)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, apperrors.SchemaViolation("batch must contain at least one record", nil)
	}

	for i := range records {
		if err := validate.Struct(&records[i]); err != nil {
			return nil, apperrors.SchemaViolation(describeFieldErrors(i, err), err)
		}
	}

	if dups := duplicateExternalIDs(records); len(dups) > 0 {
		return nil, apperrors.DuplicateIDInBatch(dups)
	}

	return records, nil
}

// recordFields holds the exact json names a record may carry. encoding/json
// matches keys case-insensitively, so keys are checked before decoding.
var recordFields = jsonFieldNames(reflect.TypeOf(models.BatchRecord{}))

func jsonFieldNames(t reflect.Type) map[string]bool {
	names := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := strings.SplitN(t.Field(i).Tag.Get("json"), ",", 2)[0]
		if name != "" && name != "-" {
			names[name] = true
		}
	}
	return names
}

func decodeRecords(raw []byte) ([]models.BatchRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	var objects []map[string]json.RawMessage
	if err := dec.Decode(&objects); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			appErr := apperrors.Request("Could not parse request body.")
			appErr.Cause = err
			return nil, appErr
		}
		return nil, apperrors.SchemaViolation(schemaMessage(err), err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, apperrors.SchemaViolation("request body must contain a single JSON array", err)
	}

	if objects == nil {
		return nil, apperrors.SchemaViolation("request body must be a JSON array of records", nil)
	}

	for i, obj := range objects {
		if key := unknownKey(obj); key != "" {
			return nil, apperrors.SchemaViolation(fmt.Sprintf("record %d: unknown field %q", i, key), nil)
		}
	}

	// keys are exact at this point, so each one maps to a single field
	var records []models.BatchRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, apperrors.SchemaViolation(schemaMessage(err), err)
	}

	return records, nil
}

func unknownKey(obj map[string]json.RawMessage) string {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		if !recordFields[key] {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return keys[0]
}

func schemaMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return "request body must be a JSON array of records"
		}
		return fmt.Sprintf("field %q must be of type %s", typeErr.Field, typeErr.Type)
	}
	return "request body does not match the record schema"
}

func describeFieldErrors(index int, err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Sprintf("record %d is invalid", index)
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return fmt.Sprintf("record %d: %s", index, strings.Join(parts, ", "))
}

func duplicateExternalIDs(records []models.BatchRecord) []string {
	seen := make(map[string]int, len(records))
	for _, rec := range records {
		seen[rec.ExternalID]++
	}

	var dups []string
	for id, count := range seen {
		if count > 1 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)
	return dups
}

// PhoneNumberValid reports whether s is a plausible E.164 number
func PhoneNumberValid(s string) bool {
	return validate.Var(s, "required,e164") == nil
}

// HasValidPhone reports whether the record's phone number is absent or valid.
// A phone number that is present but empty is invalid.
func HasValidPhone(rec models.BatchRecord) bool {
	return rec.PhoneNumber == nil || PhoneNumberValid(*rec.PhoneNumber)
}
