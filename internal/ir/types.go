package ir

// VariantSet is a compiled, ordered set of variants.
type VariantSet struct {
	// MaxPayload is the inline payload cap in bytes. Zero means the
	// registry default.
	MaxPayload int           `json:"max_payload,omitempty"`
	Variants   []VariantSpec `json:"variants"`
}

// VariantSpec describes one variant: its label, the catalog operation it
// runs and its payload fields in declaration order.
type VariantSpec struct {
	Label  string      `json:"label"`
	Op     string      `json:"op"`
	Fields []FieldSpec `json:"fields"`
}

// FieldSpec is one scalar payload field.
type FieldSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Labels returns the variant labels in tag order.
func (s VariantSet) Labels() []string {
	out := make([]string, len(s.Variants))
	for i, v := range s.Variants {
		out[i] = v.Label
	}
	return out
}

// Lookup returns the variant with label.
func (s VariantSet) Lookup(label string) (VariantSpec, bool) {
	for _, v := range s.Variants {
		if v.Label == label {
			return v, true
		}
	}
	return VariantSpec{}, false
}

// ToValue converts the set to its canonical Value form.
func (s VariantSet) ToValue() Object {
	variants := make(Array, len(s.Variants))
	for i, v := range s.Variants {
		fields := make(Array, len(v.Fields))
		for j, f := range v.Fields {
			fields[j] = Object{"name": String(f.Name), "type": String(f.Type)}
		}
		variants[i] = Object{
			"label":  String(v.Label),
			"op":     String(v.Op),
			"fields": fields,
		}
	}
	return Object{
		"max_payload": Int(s.MaxPayload),
		"variants":    variants,
	}
}
