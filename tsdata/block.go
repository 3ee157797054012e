package tsdata

import (
	"github.com/nahratzah/monsoon/fsptr"
	"github.com/nahratzah/monsoon/internal/xdr"
)

// Block is one (timestamps, dict_delta, tables) triple within a tables-kind
// file, grounded on file_data_tables_block.cc/.h. Timestamps are inline on
// the wire; Dict and Tables point to separately segment-wrapped extents
// elsewhere in the file.
type Block struct {
	Timestamps TimestampDelta
	Dict       fsptr.Pointer // -> a fresh dictionary's EncodeUpdate bytes
	Tables     fsptr.Pointer // -> Tables
}

// Encode appends the wire form of b to buf.
func (b Block) Encode(buf []byte) []byte {
	buf = b.Timestamps.Encode(buf)
	buf = xdr.PutPointer(buf, b.Dict)
	buf = xdr.PutPointer(buf, b.Tables)
	return buf
}

// DecodeBlock parses a Block from the front of buf.
func DecodeBlock(buf []byte) (Block, int, error) {
	ts, off, err := DecodeTimestampDelta(buf)
	if err != nil {
		return Block{}, 0, err
	}
	dictPtr, m, err := xdr.GetPointer(buf[off:])
	off += m
	if err != nil {
		return Block{}, 0, err
	}
	tablesPtr, m, err := xdr.GetPointer(buf[off:])
	off += m
	if err != nil {
		return Block{}, 0, err
	}
	return Block{Timestamps: ts, Dict: dictPtr, Tables: tablesPtr}, off, nil
}

// FileDataTables is the root structure a tables-kind file's header.FDT
// pointer addresses: an ordered collection of blocks, grounded on
// file_data_tables.cc/.h.
type FileDataTables struct {
	Blocks []Block
}

// Encode appends the wire form of fdt to buf: a u32-counted collection of
// inline blocks.
func (fdt FileDataTables) Encode(buf []byte) []byte {
	buf = xdr.PutCollectionLen(buf, len(fdt.Blocks))
	for _, b := range fdt.Blocks {
		buf = b.Encode(buf)
	}
	return buf
}

// DecodeFileDataTables parses a FileDataTables from the front of buf.
func DecodeFileDataTables(buf []byte) (FileDataTables, int, error) {
	n, off, err := xdr.GetCollectionLen(buf)
	if err != nil {
		return FileDataTables{}, 0, err
	}
	blocks := make([]Block, n)
	for i := range blocks {
		b, m, err := DecodeBlock(buf[off:])
		off += m
		if err != nil {
			return FileDataTables{}, 0, err
		}
		blocks[i] = b
	}
	return FileDataTables{Blocks: blocks}, off, nil
}
