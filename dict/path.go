package dict

import "strconv"

// PathDictionary is an append-only table of paths, each a sequence of
// indices into a shared StrvalDictionary. It is used for both metric names
// and group paths, which share the same "sequence of interned path
// components" shape.
type PathDictionary struct {
	strs        *StrvalDictionary
	paths       [][]uint32
	inverse     map[string]uint32
	updateStart int
}

// NewPathDictionary returns an empty path dictionary backed by strs. strs is
// shared with any other dictionary (strval, tag) encoding against the same
// wire stream, since a path's components are interned there too.
func NewPathDictionary(strs *StrvalDictionary) *PathDictionary {
	return &PathDictionary{strs: strs}
}

func (d *PathDictionary) Len() int { return len(d.paths) }

func pathKey(idxs []uint32) string {
	// A vector of u32s has no collision-free short representation that's
	// also cheap to build; comma-joined decimal is good enough since paths
	// are short and this is only used for update-time deduplication.
	buf := make([]byte, 0, len(idxs)*4)
	for i, idx := range idxs {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(idx), 10)
	}
	return string(buf)
}

func (d *PathDictionary) ensureInverse() {
	if d.inverse != nil && len(d.inverse) == len(d.paths) {
		return
	}
	d.inverse = make(map[string]uint32, len(d.paths))
	for i, p := range d.paths {
		d.inverse[pathKey(p)] = uint32(i)
	}
}

// Encode interns components (via the shared StrvalDictionary) and returns the
// path's index, inserting a new path if this exact sequence isn't already
// present.
func (d *PathDictionary) Encode(components []string) uint32 {
	idxs := make([]uint32, len(components))
	for i, c := range components {
		idxs[i] = d.strs.Encode(c)
	}
	d.ensureInverse()
	key := pathKey(idxs)
	if idx, ok := d.inverse[key]; ok {
		return idx
	}
	idx := uint32(len(d.paths))
	d.paths = append(d.paths, idxs)
	d.inverse[key] = idx
	return idx
}

// Decode resolves the path at idx into its string components.
func (d *PathDictionary) Decode(idx uint32) ([]string, error) {
	idxs, err := d.DecodeIndices(idx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(idxs))
	for i, si := range idxs {
		s, err := d.strs.Decode(si)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// DecodeIndices returns the path at idx as its raw string-dictionary indices,
// without resolving them to strings.
func (d *PathDictionary) DecodeIndices(idx uint32) ([]uint32, error) {
	if idx >= uint32(len(d.paths)) {
		return nil, ErrDictionaryLookup
	}
	return d.paths[idx], nil
}

func (d *PathDictionary) UpdatePending() bool {
	return d.updateStart < len(d.paths)
}

// EncodeUpdate appends {offset: u32, vec<new paths since last update>} to
// buf, each path itself a length-prefixed vector of u32 string indices.
func (d *PathDictionary) EncodeUpdate(buf []byte) []byte {
	buf = putUint32(buf, uint32(d.updateStart))
	buf = putUint32(buf, uint32(len(d.paths)-d.updateStart))
	for _, p := range d.paths[d.updateStart:] {
		buf = putUint32(buf, uint32(len(p)))
		for _, idx := range p {
			buf = putUint32(buf, idx)
		}
	}
	d.updateStart = len(d.paths)
	return buf
}

// DecodeUpdate parses an update written by EncodeUpdate from the front of
// buf. The offset must equal the dictionary's current length
// (ErrNonContiguousUpdate otherwise); on any decoding error the dictionary is
// left unchanged.
func (d *PathDictionary) DecodeUpdate(buf []byte) (int, error) {
	if len(buf) < 8 {
		return 0, errShortBuf
	}
	offset := getUint32(buf)
	if int(offset) != len(d.paths) {
		return 0, ErrNonContiguousUpdate
	}
	count := getUint32(buf[4:])
	n := 8

	newPaths := make([][]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < n+4 {
			return 0, errShortBuf
		}
		plen := getUint32(buf[n:])
		n += 4
		if len(buf) < n+int(plen)*4 {
			return 0, errShortBuf
		}
		path := make([]uint32, plen)
		for j := range path {
			path[j] = getUint32(buf[n:])
			n += 4
		}
		newPaths = append(newPaths, path)
	}

	d.paths = append(d.paths, newPaths...)
	d.inverse = nil
	d.updateStart = len(d.paths)
	return n, nil
}
