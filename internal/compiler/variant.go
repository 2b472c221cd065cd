package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tagbatch/internal/ir"
)

// CompileVariantSet parses a CUE value holding a "variant" struct and an
// optional "limits" struct into a VariantSet.
//
// Variants keep their declaration order, which becomes tag order:
//
//	limits: max_payload: 64
//	variant: circle: {
//	    op: "circle_area"
//	    fields: [{name: "radius", type: "float32"}]
//	}
//
// Missing ops and field names compile to empty strings; Validate reports
// them with codes. Values of the wrong CUE kind are CompileErrors.
func CompileVariantSet(v cue.Value) (*ir.VariantSet, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	set := &ir.VariantSet{}

	limits := v.LookupPath(cue.ParsePath("limits.max_payload"))
	if limits.Exists() {
		n, err := limits.Int64()
		if err != nil {
			return nil, &CompileError{
				Field:   "limits.max_payload",
				Message: "max_payload must be an integer",
				Pos:     limits.Pos(),
			}
		}
		set.MaxPayload = int(n)
	}

	variants := v.LookupPath(cue.ParsePath("variant"))
	if !variants.Exists() {
		return set, nil
	}
	iter, err := variants.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		spec, err := CompileVariant(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		set.Variants = append(set.Variants, *spec)
	}
	return set, nil
}

// CompileVariant parses one variant body.
func CompileVariant(label string, v cue.Value) (*ir.VariantSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.VariantSpec{Label: label}

	opVal := v.LookupPath(cue.ParsePath("op"))
	if opVal.Exists() {
		op, err := opVal.String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("variant.%s.op", label),
				Message: "op must be a string",
				Pos:     opVal.Pos(),
			}
		}
		spec.Op = op
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return spec, nil
	}
	list, err := fieldsVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   fmt.Sprintf("variant.%s.fields", label),
			Message: "fields must be a list",
			Pos:     fieldsVal.Pos(),
		}
	}
	for i := 0; list.Next(); i++ {
		f, err := compileField(label, i, list.Value())
		if err != nil {
			return nil, err
		}
		spec.Fields = append(spec.Fields, f)
	}
	return spec, nil
}

func compileField(label string, i int, v cue.Value) (ir.FieldSpec, error) {
	var f ir.FieldSpec
	path := fmt.Sprintf("variant.%s.fields[%d]", label, i)

	if v.IncompleteKind() != cue.StructKind {
		return f, &CompileError{
			Field:   path,
			Message: "field must be {name, type}",
			Pos:     v.Pos(),
		}
	}

	for _, part := range []struct {
		key string
		dst *string
	}{
		{"name", &f.Name},
		{"type", &f.Type},
	} {
		pv := v.LookupPath(cue.ParsePath(part.key))
		if !pv.Exists() {
			continue
		}
		s, err := pv.String()
		if err != nil {
			return f, &CompileError{
				Field:   path + "." + part.key,
				Message: part.key + " must be a string",
				Pos:     pv.Pos(),
			}
		}
		*part.dst = s
	}
	return f, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
