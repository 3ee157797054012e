package dict

// Dictionary combines the string/path/tag dictionary triple that backs a
// tsdata v2 file's interned names, group paths, and tag sets.
type Dictionary struct {
	Strs  *StrvalDictionary
	Paths *PathDictionary
	Tags  *TagDictionary
}

// NewDictionary returns an empty dictionary triple sharing one
// StrvalDictionary.
func NewDictionary() *Dictionary {
	strs := NewStrvalDictionary()
	return &Dictionary{
		Strs:  strs,
		Paths: NewPathDictionary(strs),
		Tags:  NewTagDictionary(strs),
	}
}

// UpdatePending reports whether any of the three dictionaries has entries
// added since the last EncodeUpdate.
func (d *Dictionary) UpdatePending() bool {
	return d.Strs.UpdatePending() || d.Paths.UpdatePending() || d.Tags.UpdatePending()
}

// EncodeUpdate appends a combined delta to buf. Paths and tags may force new
// string inserts while encoding, so their updates are computed into a
// scratch buffer first; the string update is then written first on the wire
// (so a reader can resolve it before dereferencing indices in paths/tags),
// followed by the precomputed path and tag bytes.
func (d *Dictionary) EncodeUpdate(buf []byte) []byte {
	var scratch []byte
	scratch = d.Paths.EncodeUpdate(scratch)
	scratch = d.Tags.EncodeUpdate(scratch)

	buf = d.Strs.EncodeUpdate(buf)
	return append(buf, scratch...)
}

// DecodeUpdate parses a combined delta written by EncodeUpdate from the
// front of buf, in strings-then-paths-then-tags order, returning the number
// of bytes consumed. A failure partway through leaves any dictionary that
// already decoded successfully updated (each sub-dictionary still rolls back
// its own partial append on its own error).
func (d *Dictionary) DecodeUpdate(buf []byte) (int, error) {
	n, err := d.Strs.DecodeUpdate(buf)
	if err != nil {
		return 0, err
	}
	total := n

	n, err = d.Paths.DecodeUpdate(buf[total:])
	if err != nil {
		return 0, err
	}
	total += n

	n, err = d.Tags.DecodeUpdate(buf[total:])
	if err != nil {
		return 0, err
	}
	total += n

	return total, nil
}
