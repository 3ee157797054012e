package dict

// StrvalDictionary is an append-only table of interned strings. Encode
// returns the existing index for a string already present, or appends it and
// returns the new index. Encode keeps the inverse map current; after
// DecodeUpdate appends entries it is rebuilt lazily on the next Encode,
// mirroring the original's deferred inverse_ construction.
type StrvalDictionary struct {
	values      []string
	inverse     map[string]uint32
	updateStart int
}

// NewStrvalDictionary returns an empty string dictionary.
func NewStrvalDictionary() *StrvalDictionary {
	return &StrvalDictionary{}
}

func (d *StrvalDictionary) ensureInverse() {
	if d.inverse != nil && len(d.inverse) == len(d.values) {
		return
	}
	d.inverse = make(map[string]uint32, len(d.values))
	for i, s := range d.values {
		d.inverse[s] = uint32(i)
	}
}

// Len returns the number of interned strings.
func (d *StrvalDictionary) Len() int { return len(d.values) }

// Encode returns s's index, inserting it if not already present.
func (d *StrvalDictionary) Encode(s string) uint32 {
	d.ensureInverse()
	if idx, ok := d.inverse[s]; ok {
		return idx
	}
	idx := uint32(len(d.values))
	d.values = append(d.values, s)
	d.inverse[s] = idx
	return idx
}

// Decode returns the string at idx, or ErrDictionaryLookup if idx is out of
// range.
func (d *StrvalDictionary) Decode(idx uint32) (string, error) {
	if idx >= uint32(len(d.values)) {
		return "", ErrDictionaryLookup
	}
	return d.values[idx], nil
}

// UpdatePending reports whether any strings have been added since the last
// EncodeUpdate.
func (d *StrvalDictionary) UpdatePending() bool {
	return d.updateStart < len(d.values)
}

// EncodeUpdate appends {offset: u32, vec<new strings since last update>} to
// buf and advances the update boundary to the current length.
func (d *StrvalDictionary) EncodeUpdate(buf []byte) []byte {
	buf = putUint32(buf, uint32(d.updateStart))
	buf = putUint32(buf, uint32(len(d.values)-d.updateStart))
	for _, s := range d.values[d.updateStart:] {
		buf = putString(buf, s)
	}
	d.updateStart = len(d.values)
	return buf
}

// DecodeUpdate parses an update written by EncodeUpdate from the front of
// buf, appending the new entries and returning the number of bytes consumed.
// The update's offset must equal the dictionary's current length
// (ErrNonContiguousUpdate otherwise). On any decoding error the dictionary is
// left unchanged.
func (d *StrvalDictionary) DecodeUpdate(buf []byte) (int, error) {
	if len(buf) < 8 {
		return 0, errShortBuf
	}
	offset := getUint32(buf)
	if int(offset) != len(d.values) {
		return 0, ErrNonContiguousUpdate
	}
	count := getUint32(buf[4:])
	n := 8

	newValues := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		s, adv, err := getString(buf[n:])
		if err != nil {
			return 0, err
		}
		newValues = append(newValues, s)
		n += adv
	}

	d.values = append(d.values, newValues...)
	d.inverse = nil
	d.updateStart = len(d.values)
	return n, nil
}
