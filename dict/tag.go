package dict

import "sort"

// TagDictionary is an append-only table of tag sets: each entry maps
// string-dictionary indices (tag keys) to MetricValues (tag values). Used to
// intern the metric-tag maps attached to each (group, metric) column.
type TagDictionary struct {
	strs        *StrvalDictionary
	tags        []map[uint32]MetricValue
	inverse     map[string]uint32
	updateStart int
}

// NewTagDictionary returns an empty tag dictionary backed by strs, shared
// with any other dictionary encoding against the same wire stream.
func NewTagDictionary(strs *StrvalDictionary) *TagDictionary {
	return &TagDictionary{strs: strs}
}

func (d *TagDictionary) Len() int { return len(d.tags) }

func sortedKeys(m map[uint32]MetricValue) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// tagKey builds a deterministic dedup key for a tag set: sorted keys, each
// followed by its value's wire encoding.
func tagKey(strs *StrvalDictionary, m map[uint32]MetricValue) string {
	var buf []byte
	for _, k := range sortedKeys(m) {
		buf = putUint32(buf, k)
		buf = EncodeMetricValue(buf, m[k], strs)
	}
	return string(buf)
}

func (d *TagDictionary) ensureInverse() {
	if d.inverse != nil && len(d.inverse) == len(d.tags) {
		return
	}
	d.inverse = make(map[string]uint32, len(d.tags))
	for i, m := range d.tags {
		d.inverse[tagKey(d.strs, m)] = uint32(i)
	}
}

// Encode interns tags's keys (via the shared StrvalDictionary) and returns
// the tag set's index, inserting a new entry if this exact set isn't already
// present.
func (d *TagDictionary) Encode(tags map[string]MetricValue) uint32 {
	idxMap := make(map[uint32]MetricValue, len(tags))
	for k, v := range tags {
		idxMap[d.strs.Encode(k)] = v
	}
	d.ensureInverse()
	key := tagKey(d.strs, idxMap)
	if idx, ok := d.inverse[key]; ok {
		return idx
	}
	idx := uint32(len(d.tags))
	d.tags = append(d.tags, idxMap)
	d.inverse[key] = idx
	return idx
}

// Decode resolves the tag set at idx into string-keyed MetricValues.
func (d *TagDictionary) Decode(idx uint32) (map[string]MetricValue, error) {
	idxMap, err := d.DecodeIndices(idx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]MetricValue, len(idxMap))
	for k, v := range idxMap {
		s, err := d.strs.Decode(k)
		if err != nil {
			return nil, err
		}
		out[s] = v
	}
	return out, nil
}

// DecodeIndices returns the tag set at idx with its keys left as raw
// string-dictionary indices.
func (d *TagDictionary) DecodeIndices(idx uint32) (map[uint32]MetricValue, error) {
	if idx >= uint32(len(d.tags)) {
		return nil, ErrDictionaryLookup
	}
	return d.tags[idx], nil
}

func (d *TagDictionary) UpdatePending() bool {
	return d.updateStart < len(d.tags)
}

// EncodeUpdate appends {offset: u32, vec<new tag sets since last update>} to
// buf. Each tag set is written as two passes: first its keys (a u32-counted
// vector of string indices), then its values (the same count of
// MetricValues) — matching the original's key-pass-then-value-pass layout.
func (d *TagDictionary) EncodeUpdate(buf []byte) []byte {
	buf = putUint32(buf, uint32(d.updateStart))
	buf = putUint32(buf, uint32(len(d.tags)-d.updateStart))
	for _, m := range d.tags[d.updateStart:] {
		keys := sortedKeys(m)
		buf = putUint32(buf, uint32(len(keys)))
		for _, k := range keys {
			buf = putUint32(buf, k)
		}
		for _, k := range keys {
			buf = EncodeMetricValue(buf, m[k], d.strs)
		}
	}
	d.updateStart = len(d.tags)
	return buf
}

// DecodeUpdate parses an update written by EncodeUpdate from the front of
// buf. The offset must equal the dictionary's current length
// (ErrNonContiguousUpdate otherwise); on any decoding error the dictionary is
// left unchanged.
func (d *TagDictionary) DecodeUpdate(buf []byte) (int, error) {
	if len(buf) < 8 {
		return 0, errShortBuf
	}
	offset := getUint32(buf)
	if int(offset) != len(d.tags) {
		return 0, ErrNonContiguousUpdate
	}
	count := getUint32(buf[4:])
	n := 8

	newTags := make([]map[uint32]MetricValue, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < n+4 {
			return 0, errShortBuf
		}
		klen := getUint32(buf[n:])
		n += 4
		if len(buf) < n+int(klen)*4 {
			return 0, errShortBuf
		}
		keys := make([]uint32, klen)
		for j := range keys {
			keys[j] = getUint32(buf[n:])
			n += 4
		}

		m := make(map[uint32]MetricValue, klen)
		for _, k := range keys {
			v, adv, err := DecodeMetricValue(buf[n:], d.strs)
			if err != nil {
				return 0, err
			}
			m[k] = v
			n += adv
		}
		newTags = append(newTags, m)
	}

	d.tags = append(d.tags, newTags...)
	d.inverse = nil
	d.updateStart = len(d.tags)
	return n, nil
}
