package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/tagbatch/internal/compiler"
	"github.com/roach88/tagbatch/internal/ir"
)

// Load error codes (E001-E099). Validation codes E100 and up come from
// the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build or compile failed
	ErrCodeWriteFailed = "E007" // File write error
)

// LoadError is a failure to turn a variants directory into a VariantSet.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// loadVariants compiles the CUE package in dir and validates it. A
// *LoadError means nothing could be compiled; validation problems come
// back as the second result alongside the set.
func loadVariants(dir string) (*ir.VariantSet, []compiler.ValidationError, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("variants directory not found: %s", dir)}
	}
	if !info.IsDir() {
		return nil, nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := compiler.FindCUEFiles(dir)
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	set, err := compiler.LoadDir(dir)
	if err != nil {
		var cerr *compiler.CompileError
		if errors.As(err, &cerr) {
			return nil, nil, &LoadError{Code: ErrCodeBuildFailed, Message: cerr.Field + ": " + cerr.Message, Pos: cerr.Pos}
		}
		return nil, nil, &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
	}
	return set, compiler.Validate(set), nil
}

// loadErrorCode returns the E-code of a loadVariants failure.
func loadErrorCode(err error) (string, string) {
	var lerr *LoadError
	if errors.As(err, &lerr) {
		return lerr.Code, lerr.Message
	}
	return ErrCodeGeneric, err.Error()
}
