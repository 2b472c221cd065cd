// Package ir holds the intermediate representation shared by the compiler,
// the engine and the trace log.
//
// A compiled variant set is an ordered list of VariantSpec values; the
// position of a spec is the tag it receives when the engine registers it.
// Sweep traces are built from the sealed Value types in this package and
// serialized with MarshalCanonical, so two runs that produce the same
// outputs produce byte-identical traces and hashes.
//
// Constraints:
//   - No float values. Numeric outputs are carried as fixed-precision
//     strings (FormatValue) so traces stay comparable across platforms.
//   - JSON tags are snake_case.
//   - ir imports nothing internal.
package ir
