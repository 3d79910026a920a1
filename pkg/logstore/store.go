// pkg/logstore/store.go
package logstore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/lucid-vigil/warden/pkg/events"
)

const (
	segmentPrefix = "events-"
	segmentSuffix = ".wlog"
	segmentStamp  = "20060102T150405.000000000"

	// maxFrameBytes rejects absurd frame lengths during a scan so a
	// corrupted length prefix cannot trigger a huge allocation.
	maxFrameBytes = 16 << 20
)

// DefaultMaxSegmentBytes is the rotation threshold when none is configured.
const DefaultMaxSegmentBytes = 10 << 20

var (
	ErrDegraded = fmt.Errorf("log store is in degraded mode, persistence disabled")
)

// FrameError describes one frame or segment that could not be read back
// during an export scan. Scans skip and continue; the diagnostics are
// returned alongside the partial result.
type FrameError struct {
	Segment string `json:"segment"`
	Frame   int    `json:"frame"`
	Reason  string `json:"reason"`
}

// Store is the append-only, authenticated-encrypted event log. Each
// segment file is a sequence of [u32 big-endian length][sealed payload]
// frames; the sealed payload is nonce || ciphertext+tag over the
// canonical JSON form of a SecurityEvent.
//
// The monitor's worker goroutine is the only appender. Rotation and
// retention run on timers and serialize with the writer through the
// store mutex, which is held around the current-segment swap only, never
// around frame I/O on the read path.
type Store struct {
	dir    string
	aead   cipher.AEAD
	logger zerolog.Logger

	maxSegmentBytes int64

	mu          sync.Mutex
	current     *os.File
	currentSize int64
	degraded    bool
	degradedErr error
}

// NewStore opens (or creates) the segment directory and initializes the
// sealing cipher from the key provider. A missing or broken key does not
// fail construction: the store comes up in degraded mode so buffering and
// analysis can continue without persistence.
func NewStore(dir string, keys KeyProvider, maxSegmentBytes int64, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if maxSegmentBytes <= 0 {
		maxSegmentBytes = DefaultMaxSegmentBytes
	}

	s := &Store{
		dir:             dir,
		maxSegmentBytes: maxSegmentBytes,
		logger:          logger.With().Str("component", "log_store").Logger(),
	}

	key, err := keys.Key()
	if err != nil {
		s.markDegraded(fmt.Errorf("failed to obtain sealing key: %w", err))
		return s, nil
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		s.markDegraded(fmt.Errorf("failed to initialize cipher: %w", err))
		return s, nil
	}
	s.aead = aead
	return s, nil
}

// Append seals one event and writes it as a frame to the current
// segment, rotating first when the segment is absent or full.
func (s *Store) Append(ev events.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		return ErrDegraded
	}

	plaintext, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	sealed, err := s.seal(plaintext)
	if err != nil {
		return err
	}

	frame := make([]byte, 4+len(sealed))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(sealed)))
	copy(frame[4:], sealed)

	if s.current == nil || s.currentSize >= s.maxSegmentBytes {
		if err := s.rotateLocked(); err != nil {
			s.markDegraded(err)
			return ErrDegraded
		}
	}

	if _, err := s.current.Write(frame); err != nil {
		s.markDegraded(fmt.Errorf("segment write failed: %w", err))
		return ErrDegraded
	}
	s.currentSize += int64(len(frame))
	return nil
}

func (s *Store) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Store) open(sealed []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, fmt.Errorf("sealed frame shorter than nonce")
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return plaintext, nil
}

// Rotate closes the current segment and starts a new one. Called on a
// daily timer regardless of size to bound the exposure window per
// segment.
func (s *Store) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return ErrDegraded
	}
	return s.rotateLocked()
}

func (s *Store) rotateLocked() error {
	if s.current != nil {
		if err := s.current.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to close rotated segment")
		}
		s.current = nil
	}

	name := segmentPrefix + time.Now().UTC().Format(segmentStamp) + segmentSuffix
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open segment %s: %w", name, err)
	}

	s.current = f
	s.currentSize = 0
	s.logger.Info().Str("segment", name).Msg("Log segment rotated")
	return nil
}

// PruneExpired deletes segment files created before the retention
// horizon. Deletion failures are logged, not fatal.
func (s *Store) PruneExpired(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)
	segments, err := s.listSegments()
	if err != nil {
		s.logger.Error().Err(err).Msg("Retention sweep failed to list segments")
		return 0
	}

	currentPath := s.CurrentSegmentPath()
	removed := 0
	for _, seg := range segments {
		if seg.path == currentPath {
			continue
		}
		if seg.created.Before(cutoff) {
			if err := os.Remove(seg.path); err != nil {
				s.logger.Error().Err(err).Str("segment", seg.path).Msg("Failed to delete expired segment")
				continue
			}
			removed++
			s.logger.Info().Str("segment", seg.path).Msg("Expired segment deleted")
		}
	}
	return removed
}

// Export scans all segments and returns the decrypted events whose
// timestamps fall inside [start, end] inclusive, oldest segment first.
// Frames that fail to decrypt or carry a corrupt length are skipped and
// reported; a corrupt length aborts the remainder of that segment since
// frame boundaries cannot be recovered.
func (s *Store) Export(start, end time.Time) ([]events.SecurityEvent, []FrameError, error) {
	s.mu.Lock()
	if s.aead == nil {
		err := s.degradedErr
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("cannot export without a sealing key: %w", err)
	}
	// Sync the current segment so the scan sees every committed frame.
	if s.current != nil {
		if err := s.current.Sync(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to sync current segment before export")
		}
	}
	s.mu.Unlock()

	segments, err := s.listSegments()
	if err != nil {
		return nil, nil, err
	}

	var out []events.SecurityEvent
	var skipped []FrameError
	for _, seg := range segments {
		evs, errs := s.scanSegment(seg.path, start, end)
		out = append(out, evs...)
		skipped = append(skipped, errs...)
	}
	return out, skipped, nil
}

func (s *Store) scanSegment(path string, start, end time.Time) ([]events.SecurityEvent, []FrameError) {
	f, err := os.Open(path)
	if err != nil {
		return nil, []FrameError{{Segment: filepath.Base(path), Frame: -1, Reason: err.Error()}}
	}
	defer f.Close()

	var out []events.SecurityEvent
	var skipped []FrameError
	var lenBuf [4]byte
	for frame := 0; ; frame++ {
		if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
			if err != io.EOF {
				skipped = append(skipped, FrameError{Segment: filepath.Base(path), Frame: frame, Reason: "truncated length prefix"})
			}
			break
		}
		length := binary.BigEndian.Uint32(lenBuf[:])
		if length == 0 || length > maxFrameBytes {
			// Frame boundaries are unrecoverable past this point.
			skipped = append(skipped, FrameError{Segment: filepath.Base(path), Frame: frame, Reason: fmt.Sprintf("corrupt frame length %d", length)})
			break
		}

		sealed := make([]byte, length)
		if _, err := io.ReadFull(f, sealed); err != nil {
			skipped = append(skipped, FrameError{Segment: filepath.Base(path), Frame: frame, Reason: "truncated frame"})
			break
		}

		plaintext, err := s.open(sealed)
		if err != nil {
			skipped = append(skipped, FrameError{Segment: filepath.Base(path), Frame: frame, Reason: err.Error()})
			continue
		}

		var ev events.SecurityEvent
		if err := json.Unmarshal(plaintext, &ev); err != nil {
			skipped = append(skipped, FrameError{Segment: filepath.Base(path), Frame: frame, Reason: fmt.Sprintf("malformed event: %v", err)})
			continue
		}

		if ev.Timestamp.Before(start) || ev.Timestamp.After(end) {
			continue
		}
		out = append(out, ev)
	}
	return out, skipped
}

type segmentInfo struct {
	path    string
	created time.Time
}

func (s *Store) listSegments() ([]segmentInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	var segments []segmentInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		created, err := time.Parse(segmentStamp, strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix))
		if err != nil {
			// Fall back to filesystem mtime for segments with foreign names.
			info, ierr := entry.Info()
			if ierr != nil {
				continue
			}
			created = info.ModTime()
		}
		segments = append(segments, segmentInfo{path: filepath.Join(s.dir, name), created: created})
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].created.Before(segments[j].created) })
	return segments, nil
}

// CurrentSegmentPath returns the path of the open segment, or "" when no
// segment is open yet.
func (s *Store) CurrentSegmentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.Name()
}

// Degraded reports whether persistence has been disabled by a key or
// write failure.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *Store) markDegraded(err error) {
	s.degraded = true
	s.degradedErr = err
	s.logger.Error().Err(err).Msg("Log store entering degraded mode, persistence disabled")
}

// Dir returns the segment directory.
func (s *Store) Dir() string { return s.dir }

// Close flushes and closes the current segment.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	return err
}
