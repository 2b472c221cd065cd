package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tagbatch/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Variants int                        `json:"variants"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <variants-dir>",
		Short: "Validate a variant set",
		Long: `Compile the CUE variant set in a directory and check it: known field
types, unique labels, catalog operations that bind to their fields, and
payloads within max_payload. Every problem is reported with its E-code.

Exit codes:
  0 - Variant set is valid
  1 - Validation errors
  2 - Directory missing or CUE does not compile`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	set, errs, err := loadVariants(dir)
	if err != nil {
		code, msg := loadErrorCode(err)
		_ = formatter.Error(code, msg, nil)
		return WrapExitError(ExitCommandError, "failed to load variants", err)
	}
	formatter.VerboseLog("Compiled %d variant(s) from %s", len(set.Variants), dir)

	result := ValidationResult{
		Valid:    len(errs) == 0,
		Variants: len(set.Variants),
		Errors:   errs,
	}
	if err := formatter.Result(result, !result.Valid, func(w io.Writer) {
		writeValidationText(w, result)
	}); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}
	return nil
}

func writeValidationText(w io.Writer, result ValidationResult) {
	if result.Valid {
		fmt.Fprintf(w, "✓ All variants valid (%d)\n", result.Variants)
		return
	}
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s %s: %s\n", e.Code, e.Field, e.Message)
	}
}
