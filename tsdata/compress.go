package tsdata

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
)

// compress applies the file's header compression kind to payload.
func compress(kind Flags, payload []byte) ([]byte, error) {
	switch kind {
	case CompressionNone:
		return payload, nil

	case CompressionSnappy:
		return snappy.Encode(nil, payload), nil

	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, fmt.Errorf("tsdata: gzip compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("tsdata: gzip compress: %w", err)
		}
		return buf.Bytes(), nil

	case CompressionLZO1X1:
		// No maintained Go LZO implementation exists in the retrieval pack
		// or common ecosystem; see DESIGN.md.
		return nil, ErrEncodingRange

	default:
		return nil, ErrEncodingRange
	}
}

// decompress reverses compress.
func decompress(kind Flags, payload []byte) ([]byte, error) {
	switch kind {
	case CompressionNone:
		return payload, nil

	case CompressionSnappy:
		out, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("tsdata: snappy decompress: %w", err)
		}
		return out, nil

	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("tsdata: gzip decompress: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("tsdata: gzip decompress: %w", err)
		}
		return out, nil

	case CompressionLZO1X1:
		return nil, ErrEncodingRange

	default:
		return nil, ErrEncodingRange
	}
}
