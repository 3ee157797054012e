package tsdata

import "errors"

// ErrBadMagic is returned by Open when the mime header's magic bytes don't
// match.
var ErrBadMagic = errors.New("tsdata: bad magic")

// ErrEncodingRange is returned when a value doesn't fit its wire
// representation: a timestamp delta overflowing 32 bits, an unrecognized
// metric kind, or an unsupported compression kind (LZO_1X1).
var ErrEncodingRange = errors.New("tsdata: value exceeds encoding range")

// ErrNotWritable is returned by PushBack on a tables-kind file: per the
// format, only list-kind files accept appends.
var ErrNotWritable = errors.New("tsdata: file is not writable")

// ErrUnknownKind is returned by Open when the header's KIND_MASK bits name
// neither LIST nor TABLES.
var ErrUnknownKind = errors.New("tsdata: unknown file kind")
