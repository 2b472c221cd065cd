package variant

// Record is a tag plus an inline payload buffer.
//
// len(Payload) is always the sealed Capacity of the Registry the record was
// created against. Only the first Size bytes are meaningful; the rest is
// zero padding.
type Record struct {
	Tag     Tag
	Size    int
	Payload []byte
}

// NewRecord validates payload against tag and copies it into a fresh
// fixed-capacity buffer.
//
// Fails with UnknownTag unless layouts is sealed and knows tag, and with
// PayloadSizeMismatch when len(payload) differs from the declared size.
func NewRecord(layouts Layouts, tag Tag, payload []byte) (Record, error) {
	size, err := CheckPayload(layouts, tag, payload)
	if err != nil {
		return Record{}, err
	}
	buf := make([]byte, layouts.Capacity())
	copy(buf, payload)
	return Record{Tag: tag, Size: size, Payload: buf}, nil
}

// CheckPayload performs the NewRecord checks without allocating and returns
// the declared payload size of tag.
func CheckPayload(layouts Layouts, tag Tag, payload []byte) (int, error) {
	if !layouts.Sealed() {
		return 0, unknownTag(tag, "registry is not sealed")
	}
	size, err := layouts.PayloadSize(tag)
	if err != nil {
		return 0, err
	}
	if len(payload) != size {
		return 0, sizeMismatch(tag, len(payload), size)
	}
	return size, nil
}

// Bytes returns the meaningful prefix of the payload.
func (r Record) Bytes() []byte {
	return r.Payload[:r.Size]
}
