// Package snapshot writes and reads point-in-time captures of a running simulation:
// every agent's replicated state plus the world entities and stockpiles.
//
// Files are zstd streams holding one JSON header line followed by a gob body, so the
// header can be inspected without decoding the whole capture.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/entities"
)

const Version = 1

type Header struct {
	Version int     `json:"version"`
	RunID   string  `json:"run_id"`
	Time    float64 `json:"time"`
	Passes  uint64  `json:"passes"`
	Agents  int     `json:"agents"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed         int64  `json:"seed"`
	TuningDigest string `json:"tuning_digest,omitempty"`

	Agents     []protocol.AgentSnapshot  `json:"agents"`
	Nodes      []entities.ResourceNode   `json:"nodes"`
	Blueprints []entities.Blueprint      `json:"blueprints"`
	Stockpiles map[string]map[string]int `json:"stockpiles"`
}

// FileName names a snapshot by engine time in milliseconds so lexical and temporal
// order agree.
func FileName(t float64) string {
	return fmt.Sprintf("%012d.snap.zst", int64(t*1000))
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	snap.Header.Version = Version
	snap.Header.Agents = len(snap.Agents)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	err = json.Unmarshal(line, &h)
	return h, err
}

// List returns dir's snapshots oldest first.
func List(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type named struct {
		ms   int64
		path string
	}
	var found []named
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		ms, err := strconv.ParseInt(strings.TrimSuffix(e.Name(), ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		found = append(found, named{ms: ms, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ms < found[j].ms })
	out := make([]string, 0, len(found))
	for _, n := range found {
		out = append(out, n.path)
	}
	return out, nil
}

// Latest returns the newest snapshot in dir, or "" when there is none.
func Latest(dir string) string {
	all, err := List(dir)
	if err != nil || len(all) == 0 {
		return ""
	}
	return all[len(all)-1]
}

// Prune deletes all but the newest keep snapshots in dir.
func Prune(dir string, keep int) error {
	all, err := List(dir)
	if err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	for i := 0; i < len(all)-keep; i++ {
		if err := os.Remove(all[i]); err != nil {
			return err
		}
	}
	return nil
}
