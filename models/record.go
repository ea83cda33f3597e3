package models

import (
	"encoding/binary"
	"math"
	"time"
)

// RecordSize is the fixed on-disk width of one candle record. Segment files
// are flat arrays of these records and their byte length must always be a
// multiple of RecordSize.
const RecordSize = 64

// payloadSize is the used portion of a record; the rest is reserved padding.
const payloadSize = 48

// Record is one OHLCV bar as stored in a segment file: an unsigned
// millisecond timestamp followed by five float64 fields. Records within a
// file are append-only and non-decreasing in timestamp.
type Record struct {
	Timestamp uint64  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Time returns the record timestamp as UTC time.
func (r Record) Time() time.Time {
	return time.UnixMilli(int64(r.Timestamp)).UTC()
}

// Encode serializes rows into their wire format. Output is byte-for-byte
// deterministic for identical input.
func Encode(rows []Record) []byte {
	buf := make([]byte, len(rows)*RecordSize)
	for i, r := range rows {
		putRecord(buf[i*RecordSize:], r)
	}
	return buf
}

func putRecord(b []byte, r Record) {
	binary.LittleEndian.PutUint64(b[0:8], r.Timestamp)
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(r.Open))
	binary.LittleEndian.PutUint64(b[16:24], math.Float64bits(r.High))
	binary.LittleEndian.PutUint64(b[24:32], math.Float64bits(r.Low))
	binary.LittleEndian.PutUint64(b[32:40], math.Float64bits(r.Close))
	binary.LittleEndian.PutUint64(b[40:48], math.Float64bits(r.Volume))
	for i := payloadSize; i < RecordSize; i++ {
		b[i] = 0
	}
}

// Decode interprets buf as an array of records. A buffer whose length is not
// a multiple of RecordSize is corrupt and yields a FormatError.
func Decode(buf []byte) ([]Record, error) {
	if len(buf)%RecordSize != 0 {
		return nil, &FormatError{Size: int64(len(buf))}
	}
	rows := make([]Record, len(buf)/RecordSize)
	for i := range rows {
		rows[i] = At(buf, i)
	}
	return rows, nil
}

// Count reports how many whole records buf holds.
func Count(buf []byte) int {
	return len(buf) / RecordSize
}

// At reads the i-th record directly out of buf without an intermediate
// allocation pass, so callers may index straight into a memory-mapped region.
func At(buf []byte, i int) Record {
	b := buf[i*RecordSize:]
	return Record{
		Timestamp: binary.LittleEndian.Uint64(b[0:8]),
		Open:      math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
		High:      math.Float64frombits(binary.LittleEndian.Uint64(b[16:24])),
		Low:       math.Float64frombits(binary.LittleEndian.Uint64(b[24:32])),
		Close:     math.Float64frombits(binary.LittleEndian.Uint64(b[32:40])),
		Volume:    math.Float64frombits(binary.LittleEndian.Uint64(b[40:48])),
	}
}
