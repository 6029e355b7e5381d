package journal

import (
	"encoding/binary"
	"os"
	"time"
)

// Config controls where the journal lives and how large a segment
// grows before rotating to the next file.
type Config struct {
	Dir         string
	SegmentSize int64
}

// Journal is a segmented, checksummed, append-only log.
type Journal struct {
	dir      string
	segSize  int64
	current  *segment
	segIndex int
}

// Open creates Dir if needed and opens (or resumes) segment 0.
func Open(cfg Config) (*Journal, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	seg, err := openSegment(cfg.Dir, 0)
	if err != nil {
		return nil, err
	}
	return &Journal{dir: cfg.Dir, segSize: cfg.SegmentSize, current: seg}, nil
}

// Close closes the active segment file.
func (j *Journal) Close() error { return j.current.close() }

// Append writes one frame: [type:1][seq:8][time_ns:8][len:4][payload][crc32:4].
func (j *Journal) Append(rt RecordType, seq uint64, data []byte) error {
	payloadLen := uint32(len(data))
	buf := make([]byte, 1+8+8+4+payloadLen+4)

	buf[0] = byte(rt)
	binary.BigEndian.PutUint64(buf[1:9], seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[21:], data)

	crc := crc32Of(buf[:21+payloadLen])
	binary.BigEndian.PutUint32(buf[21+payloadLen:], crc)

	if err := j.current.append(buf); err != nil {
		return err
	}
	if j.segSize > 0 && j.current.offset >= j.segSize {
		return j.rotate()
	}
	return nil
}

func (j *Journal) rotate() error {
	if err := j.current.close(); err != nil {
		return err
	}
	j.segIndex++
	seg, err := openSegment(j.dir, j.segIndex)
	if err != nil {
		return err
	}
	j.current = seg
	return nil
}
