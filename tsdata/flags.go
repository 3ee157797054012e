package tsdata

// Flags is the tsfile header's u32 flags word: file kind, compression kind,
// and the sorted/distinct hints. ReadAll and EmitFiltered run the same merge
// pass whether or not the hints are set.
type Flags uint32

const (
	KindMask   Flags = 0x0000000f
	KindList   Flags = 0
	KindTables Flags = 1

	CompressionMask   Flags = 0x3f000000
	CompressionNone   Flags = 0
	CompressionLZO1X1 Flags = 0x10000000
	CompressionGzip   Flags = 0x20000000
	CompressionSnappy Flags = 0x30000000

	FlagSorted   Flags = 0x40000000
	FlagDistinct Flags = 0x80000000
)

// Kind returns the KIND_MASK bits.
func (f Flags) Kind() Flags { return f & KindMask }

// Compression returns the COMPRESSION_MASK bits.
func (f Flags) Compression() Flags { return f & CompressionMask }

// Sorted reports whether SORTED is set.
func (f Flags) Sorted() bool { return f&FlagSorted != 0 }

// Distinct reports whether DISTINCT is set.
func (f Flags) Distinct() bool { return f&FlagDistinct != 0 }

func (f Flags) String() string {
	var kind string
	switch f.Kind() {
	case KindList:
		kind = "list"
	case KindTables:
		kind = "tables"
	default:
		kind = "unknown"
	}

	var comp string
	switch f.Compression() {
	case CompressionNone:
		comp = "none"
	case CompressionLZO1X1:
		comp = "lzo1x1"
	case CompressionGzip:
		comp = "gzip"
	case CompressionSnappy:
		comp = "snappy"
	default:
		comp = "unknown"
	}

	s := kind + "/" + comp
	if f.Sorted() {
		s += "/sorted"
	}
	if f.Distinct() {
		s += "/distinct"
	}
	return s
}
