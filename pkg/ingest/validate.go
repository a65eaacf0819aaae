package ingest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Validator applies the record schema and excludes records that fail it
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator that reports fields by their JSON names
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate splits records into valid ones and one RecordError per failed field.
// A repeated record id is rejected after its first occurrence.
func (v *Validator) Validate(records []models.RawRecord) ([]models.RawRecord, []models.RecordError) {
	valid := make([]models.RawRecord, 0, len(records))
	var errs []models.RecordError
	seen := make(map[string]int, len(records))

	for _, rec := range records {
		if recErrs := v.ValidateRecord(rec); len(recErrs) > 0 {
			errs = append(errs, recErrs...)
			continue
		}
		if firstRow, dup := seen[rec.ID]; dup {
			errs = append(errs, models.RecordError{
				Row:      rec.Row,
				RecordID: rec.ID,
				Field:    "id",
				Message:  fmt.Sprintf("duplicate record id, first seen on row %d", firstRow),
			})
			continue
		}
		seen[rec.ID] = rec.Row
		valid = append(valid, rec)
	}
	return valid, errs
}

// ValidateRecord returns the schema violations of a single record
func (v *Validator) ValidateRecord(rec models.RawRecord) []models.RecordError {
	err := v.validate.Struct(rec)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.RecordError{{Row: rec.Row, RecordID: rec.ID, Message: err.Error()}}
	}

	out := make([]models.RecordError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.RecordError{
			Row:      rec.Row,
			RecordID: rec.ID,
			Field:    fe.Field(),
			Message:  fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("exceeds maximum length of %s", fe.Param())
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed rule '%s'", fe.Tag())
	}
}
