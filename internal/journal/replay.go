package journal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReplayHandler processes one recovered record in segment order.
type ReplayHandler func(*Record) error

// Replay reads every segment file in dir in order, validating each
// frame's CRC and strictly increasing sequence, invoking fn per
// record. It returns the last sequence id it saw, so a caller can
// resume a Sequencer past it.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := filepath.Glob(filepath.Join(dir, "segment-*.journal"))
	if err != nil {
		return 0, err
	}
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return lastSeq, err
		}
		for {
			rec, err := readRecord(f)
			if err != nil {
				if err == io.EOF {
					break
				}
				f.Close()
				return lastSeq, err
			}
			if rec.Seq <= lastSeq {
				f.Close()
				return lastSeq, fmt.Errorf("journal: non-monotonic seq %d after %d", rec.Seq, lastSeq)
			}
			lastSeq = rec.Seq
			if err := fn(rec); err != nil {
				f.Close()
				return lastSeq, err
			}
		}
		f.Close()
	}
	return lastSeq, nil
}

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, 21)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	rt := RecordType(header[0])
	seq := binary.BigEndian.Uint64(header[1:9])
	ts := binary.BigEndian.Uint64(header[9:17])
	payloadLen := binary.BigEndian.Uint32(header[17:21])

	body := make([]byte, payloadLen+4)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	payload := body[:payloadLen]
	crc := binary.BigEndian.Uint32(body[payloadLen:])

	frame := append(append([]byte{}, header...), payload...)
	if !crc32Valid(frame, crc) {
		return nil, fmt.Errorf("journal: crc mismatch at seq %d", seq)
	}

	return &Record{Type: rt, Seq: seq, Time: int64(ts), Data: payload}, nil
}
