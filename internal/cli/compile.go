package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tagbatch/internal/compiler"
	"github.com/roach88/tagbatch/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledVariant summarizes one variant of a compiled set.
type CompiledVariant struct {
	Tag     int    `json:"tag"`
	Label   string `json:"label"`
	Op      string `json:"op"`
	Fields  int    `json:"fields"`
	Payload int    `json:"payload"` // bytes
	Align   int    `json:"align"`
}

// CompilationResult is the compile command's output.
type CompilationResult struct {
	SpecHash   string            `json:"spec_hash"`
	MaxPayload int               `json:"max_payload"`
	Variants   []CompiledVariant `json:"variants"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <variants-dir>",
		Short: "Compile a variant set to canonical JSON",
		Long: `Compile and validate the CUE variant set in a directory, then print its
tag assignment, payload layouts and spec hash.

With --output, the canonical JSON of the set (the bytes the spec hash
digests) is written to a file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write canonical variant set JSON to file")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	set, errs, err := loadVariants(dir)
	if err != nil {
		code, msg := loadErrorCode(err)
		_ = formatter.Error(code, msg, nil)
		return WrapExitError(ExitCommandError, "failed to load variants", err)
	}
	if len(errs) > 0 {
		_ = formatter.Error(errs[0].Code, errs[0].Message, errs)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	result, err := summarize(set)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "compile", err)
	}

	if opts.Output != "" {
		data, err := ir.MarshalCanonical(set.ToValue())
		if err == nil {
			err = os.WriteFile(opts.Output, append(data, '\n'), 0o644)
		}
		if err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "write output", err)
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}

	return formatter.Result(result, false, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Compiled %d variant(s)\n\n", len(result.Variants))
		for _, v := range result.Variants {
			fmt.Fprintf(w, "  %d %s: op %s, %d field(s), %d byte payload\n", v.Tag, v.Label, v.Op, v.Fields, v.Payload)
		}
		fmt.Fprintf(w, "\nspec hash: %s\n", result.SpecHash)
	})
}

// summarize reports tags in declaration order, which is the order the
// engine registers them in.
func summarize(set *ir.VariantSet) (CompilationResult, error) {
	hash, err := ir.SpecHash(*set)
	if err != nil {
		return CompilationResult{}, err
	}
	result := CompilationResult{
		SpecHash:   hash,
		MaxPayload: set.MaxPayload,
		Variants:   make([]CompiledVariant, len(set.Variants)),
	}
	for i, spec := range set.Variants {
		layout, err := compiler.LayoutOf(spec)
		if err != nil {
			return CompilationResult{}, err
		}
		result.Variants[i] = CompiledVariant{
			Tag:     i,
			Label:   spec.Label,
			Op:      spec.Op,
			Fields:  len(spec.Fields),
			Payload: layout.Size,
			Align:   layout.Align,
		}
	}
	return result, nil
}
