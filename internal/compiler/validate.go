package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/tagbatch/internal/catalog"
	"github.com/roach88/tagbatch/internal/ir"
	"github.com/roach88/tagbatch/internal/variant"
)

// Validation error codes (E101-E199)
const (
	ErrNoVariants         = "E101" // variant set is empty
	ErrMissingOp          = "E102" // variant has no op
	ErrUnknownFieldType   = "E103" // field type is not a scalar kind
	ErrDuplicateField     = "E104" // field name repeated within a variant
	ErrDuplicateLabel     = "E105" // label repeated after normalization
	ErrPayloadTooLarge    = "E106" // layout exceeds max_payload
	ErrInvalidMaxPayload  = "E107" // max_payload is negative
	ErrEmptyFieldName     = "E108" // field has no name
	ErrUnknownOp          = "E109" // op is not in the catalog
	ErrOpLayoutMismatch   = "E110" // op cannot bind to the variant's fields
	ErrUnsupportedIRValue = "E100" // Validate got something other than a VariantSet
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled variant set and returns every problem found.
func Validate(v any) []ValidationError {
	switch set := v.(type) {
	case *ir.VariantSet:
		return validateVariantSet(set)
	case ir.VariantSet:
		return validateVariantSet(&set)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRValue,
		}}
	}
}

func validateVariantSet(set *ir.VariantSet) []ValidationError {
	var errs []ValidationError

	maxPayload := set.MaxPayload
	if maxPayload < 0 {
		errs = append(errs, ValidationError{
			Field:   "limits.max_payload",
			Message: fmt.Sprintf("max_payload must be >= 0, got %d", maxPayload),
			Code:    ErrInvalidMaxPayload,
		})
	}
	if maxPayload <= 0 {
		maxPayload = variant.DefaultMaxPayload
	}

	if len(set.Variants) == 0 {
		errs = append(errs, ValidationError{
			Field:   "variant",
			Message: "at least one variant is required",
			Code:    ErrNoVariants,
		})
	}

	labels := make(map[string]string)
	for _, spec := range set.Variants {
		field := "variant." + spec.Label

		norm := variant.NormalizeLabel(spec.Label)
		if prev, dup := labels[norm]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("label %q duplicates %q", spec.Label, prev),
				Code:    ErrDuplicateLabel,
			})
		}
		labels[norm] = spec.Label

		errs = append(errs, validateFields(field, spec)...)

		if strings.TrimSpace(spec.Op) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".op",
				Message: "op is required",
				Code:    ErrMissingOp,
			})
		}

		layout, err := LayoutOf(spec)
		if err != nil {
			// Field errors are already reported.
			continue
		}
		if layout.Size > maxPayload {
			errs = append(errs, ValidationError{
				Field:   field + ".fields",
				Message: fmt.Sprintf("payload is %d bytes, max_payload is %d", layout.Size, maxPayload),
				Code:    ErrPayloadTooLarge,
			})
		}

		if spec.Op == "" {
			continue
		}
		if _, ok := catalog.Lookup(spec.Op); !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".op",
				Message: fmt.Sprintf("unknown op %q (known: %s)", spec.Op, strings.Join(catalog.Names(), ", ")),
				Code:    ErrUnknownOp,
			})
			continue
		}
		if _, err := catalog.Build(spec.Op, layout); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".op",
				Message: err.Error(),
				Code:    ErrOpLayoutMismatch,
			})
		}
	}

	return errs
}

func validateFields(field string, spec ir.VariantSpec) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i, f := range spec.Fields {
		path := fmt.Sprintf("%s.fields[%d]", field, i)

		if strings.TrimSpace(f.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   path + ".name",
				Message: "field name is required",
				Code:    ErrEmptyFieldName,
			})
		} else if seen[f.Name] {
			errs = append(errs, ValidationError{
				Field:   path + ".name",
				Message: fmt.Sprintf("duplicate field name %q", f.Name),
				Code:    ErrDuplicateField,
			})
		}
		seen[f.Name] = true

		if _, ok := variant.ParseKind(f.Type); !ok {
			errs = append(errs, ValidationError{
				Field:   path + ".type",
				Message: fmt.Sprintf("unknown field type %q", f.Type),
				Code:    ErrUnknownFieldType,
			})
		}
	}
	return errs
}

// LayoutOf builds the payload layout of spec.
func LayoutOf(spec ir.VariantSpec) (variant.Layout, error) {
	fields := make([]variant.Field, len(spec.Fields))
	for i, f := range spec.Fields {
		kind, ok := variant.ParseKind(f.Type)
		if !ok {
			return variant.Layout{}, fmt.Errorf("variant %q field %q: unknown type %q", spec.Label, f.Name, f.Type)
		}
		fields[i] = variant.Field{Name: f.Name, Kind: kind}
	}
	layout := variant.Struct(fields...)
	if err := layout.Validate(); err != nil {
		return variant.Layout{}, fmt.Errorf("variant %q: %w", spec.Label, err)
	}
	return layout, nil
}
