package exchange

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/tick-archive/pkg/models"
	"github.com/ulikunitz/xz/lzma"
)

// bi5RecordSize is the size of one decompressed tick record
const bi5RecordSize = 20

// DecodeBi5 decompresses an hourly bi5 payload and converts its records to
// ticks. Offsets are relative to hourStart; prices are divided by pointValue.
func DecodeBi5(payload []byte, hourStart time.Time, pointValue float64) ([]models.Tick, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	if pointValue <= 0 {
		return nil, fmt.Errorf("invalid point value %v", pointValue)
	}

	r, err := lzma.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open lzma stream: %w", err)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress bi5: %w", err)
	}

	if len(raw)%bi5RecordSize != 0 {
		return nil, fmt.Errorf("truncated bi5 payload: %d bytes is not a multiple of %d", len(raw), bi5RecordSize)
	}

	base := hourStart.UnixMilli()
	ticks := make([]models.Tick, 0, len(raw)/bi5RecordSize)
	for off := 0; off < len(raw); off += bi5RecordSize {
		rec := raw[off : off+bi5RecordSize]
		ticks = append(ticks, models.Tick{
			Timestamp: base + int64(binary.BigEndian.Uint32(rec[0:4])),
			AskPrice:  float64(binary.BigEndian.Uint32(rec[4:8])) / pointValue,
			BidPrice:  float64(binary.BigEndian.Uint32(rec[8:12])) / pointValue,
			AskVolume: float64(math.Float32frombits(binary.BigEndian.Uint32(rec[12:16]))),
			BidVolume: float64(math.Float32frombits(binary.BigEndian.Uint32(rec[16:20]))),
		})
	}

	return ticks, nil
}

// EncodeBi5 is the inverse of DecodeBi5. It is used to build fixtures and replay files.
func EncodeBi5(ticks []models.Tick, hourStart time.Time, pointValue float64) ([]byte, error) {
	raw := make([]byte, 0, len(ticks)*bi5RecordSize)
	rec := make([]byte, bi5RecordSize)
	base := hourStart.UnixMilli()

	for _, t := range ticks {
		offset := t.Timestamp - base
		if offset < 0 || offset >= time.Hour.Milliseconds() {
			return nil, fmt.Errorf("tick %d outside hour starting %s", t.Timestamp, hourStart.Format(time.RFC3339))
		}
		binary.BigEndian.PutUint32(rec[0:4], uint32(offset))
		binary.BigEndian.PutUint32(rec[4:8], uint32(math.Round(t.AskPrice*pointValue)))
		binary.BigEndian.PutUint32(rec[8:12], uint32(math.Round(t.BidPrice*pointValue)))
		binary.BigEndian.PutUint32(rec[12:16], math.Float32bits(float32(t.AskVolume)))
		binary.BigEndian.PutUint32(rec[16:20], math.Float32bits(float32(t.BidVolume)))
		raw = append(raw, rec...)
	}

	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create lzma writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress bi5: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish lzma stream: %w", err)
	}

	return buf.Bytes(), nil
}
