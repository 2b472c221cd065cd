// Package variant implements the closed variant set behind tagbatch.
//
// A Registry maps dense integer tags to an operation and a fixed payload
// layout. Variants are registered once during setup, then the Registry is
// sealed. Sealing fixes the inline payload capacity shared by every Record
// drawn from that Registry: the largest registered payload, rounded up to
// the largest registered alignment.
//
// # Lifecycle
//
//	reg := variant.NewRegistry[float64]()
//	circle := reg.MustRegister("circle", circleArea, variant.Struct(
//	    variant.Field{Name: "radius", Kind: variant.Float32},
//	))
//	if err := reg.Seal(); err != nil {
//	    return err
//	}
//	rec, err := variant.NewRecord(reg, circle, payload)
//
// # Invariants
//
//   - Tags are assigned in registration order starting at 0 and never change.
//   - A failed Register leaves the entry set untouched.
//   - After Seal, the entry set and Capacity are immutable, so a sealed
//     Registry may be read from any number of goroutines.
//   - Labels are compared after trimming and NFC normalisation.
//
// The Registry is an explicit value. There is no package-level registry, so
// independent variant sets can coexist in one process.
package variant
