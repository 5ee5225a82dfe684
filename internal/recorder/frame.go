package recorder

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"main/internal/schema"
)

// On-disk frame layout, little-endian:
//
//	magic(4) version(2) headerLen(2) type(2) schemaVer(2) source(2) flags(2)
//	payloadLen(4) seq(8) tsEvent(8) tsRecv(8) traceID(8) reserved(4)
//	payload(payloadLen) crc32c(4)
//
// The checksum covers the header and payload bytes.
const (
	frameVersion uint16 = 1
	frameHeadLen        = 56
	frameCRCLen         = 4

	offMagic      = 0
	offVersion    = 4
	offHeadLen    = 6
	offType       = 8
	offSchemaVer  = 10
	offSource     = 12
	offFlags      = 14
	offPayloadLen = 16
	offSeq        = 20
	offTsEvent    = 28
	offTsRecv     = 36
	offTraceID    = 44
)

var (
	frameMagic = []byte("WAL1")
	crcTable   = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("wal invalid magic")
	ErrUnsupportedRecordVer    = errors.New("wal unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("wal invalid header size")
)

// putFrameHead serializes an event header into dst, which must hold at
// least frameHeadLen bytes.
func putFrameHead(dst []byte, h schema.EventHeader, payloadLen int) {
	le := binary.LittleEndian
	copy(dst[offMagic:], frameMagic)
	le.PutUint16(dst[offVersion:], frameVersion)
	le.PutUint16(dst[offHeadLen:], frameHeadLen)
	le.PutUint16(dst[offType:], uint16(h.Type))
	le.PutUint16(dst[offSchemaVer:], h.Version)
	le.PutUint16(dst[offSource:], uint16(h.Source))
	le.PutUint16(dst[offFlags:], h.Flags)
	le.PutUint32(dst[offPayloadLen:], uint32(payloadLen))
	le.PutUint64(dst[offSeq:], h.Seq)
	le.PutUint64(dst[offTsEvent:], uint64(h.TsEvent))
	le.PutUint64(dst[offTsRecv:], uint64(h.TsRecv))
	le.PutUint64(dst[offTraceID:], h.TraceID)
	le.PutUint32(dst[offTraceID+8:], 0)
}

// parseFrameHead decodes a frame header, returning the event header and the
// payload length that follows it.
func parseFrameHead(src []byte) (schema.EventHeader, uint32, error) {
	if len(src) < frameHeadLen {
		return schema.EventHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	le := binary.LittleEndian
	switch {
	case string(src[offMagic:offMagic+4]) != string(frameMagic):
		return schema.EventHeader{}, 0, ErrInvalidMagic
	case le.Uint16(src[offVersion:]) != frameVersion:
		return schema.EventHeader{}, 0, ErrUnsupportedRecordVer
	case le.Uint16(src[offHeadLen:]) != frameHeadLen:
		return schema.EventHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	h := schema.EventHeader{
		Type:    schema.EventType(le.Uint16(src[offType:])),
		Version: le.Uint16(src[offSchemaVer:]),
		Source:  schema.SourceID(le.Uint16(src[offSource:])),
		Flags:   le.Uint16(src[offFlags:]),
		Seq:     le.Uint64(src[offSeq:]),
		TsEvent: int64(le.Uint64(src[offTsEvent:])),
		TsRecv:  int64(le.Uint64(src[offTsRecv:])),
		TraceID: le.Uint64(src[offTraceID:]),
	}
	return h, le.Uint32(src[offPayloadLen:]), nil
}

// frameCRC covers the serialized header plus the payload.
func frameCRC(head, payload []byte) uint32 {
	return crc32.Update(crc32.Checksum(head, crcTable), crcTable, payload)
}
