// Package adc defines the raw ADC reader interface (§4.A): blocking
// acquisition of signed counts, converted to grams via a configurable
// offset and scale.
package adc

// Reader is a 24-bit signed ADC exposing blocking reads.
type Reader interface {
	IsReady() bool
	ReadRaw() int32
	SetOffset(int32)
	SetScale(float32)
}

// Convert turns a raw reading into grams given the reader's current
// offset and scale: (raw - offset) / scale.
func Convert(raw, offset int32, scale float32) float64 {
	if scale == 0 {
		return 0
	}
	return float64(raw-offset) / float64(scale)
}

// ReadConverted reads one raw sample and converts it to grams. It
// panics if the reader is not ready, matching the blocking-or-panic
// contract in §4.A; callers that need a non-panicking read should check
// IsReady first.
func ReadConverted(r Reader, offset int32, scale float32) float64 {
	if !r.IsReady() {
		panic("adc: read_raw called while not ready")
	}
	return Convert(r.ReadRaw(), offset, scale)
}

// SimReader is an in-memory Reader backed by a caller-supplied sequence
// of raw counts, used by tests in place of a real ADC peripheral.
type SimReader struct {
	values []int32
	pos    int
	offset int32
	scale  float32
}

// NewSimReader returns a SimReader that yields values in order, then
// repeats the final value indefinitely.
func NewSimReader(values []int32) *SimReader {
	return &SimReader{values: values, scale: 1}
}

func (s *SimReader) IsReady() bool { return len(s.values) > 0 }

func (s *SimReader) ReadRaw() int32 {
	if len(s.values) == 0 {
		panic("adc: read_raw called while not ready")
	}
	v := s.values[s.pos]
	if s.pos < len(s.values)-1 {
		s.pos++
	}
	return v
}

func (s *SimReader) SetOffset(o int32)   { s.offset = o }
func (s *SimReader) SetScale(sc float32) { s.scale = sc }

// Offset and Scale expose the conversion parameters last set through
// SetOffset and SetScale.
func (s *SimReader) Offset() int32   { return s.offset }
func (s *SimReader) Scale() float32  { return s.scale }
