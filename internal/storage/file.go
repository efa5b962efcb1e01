package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	logx "meetmail/pkg/logx"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.deliveries.jsonl (append-only JSON Lines)
//
// Pruning rewrites the file in place under the lock.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	file *os.File
}

type deliveryRecord struct {
	At        int64  `json:"at"` // unix milli
	RequestID string `json:"request_id"`
	Recipient string `json:"recipient"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	Attempts  int    `json:"attempts"`
	TookMS    int64  `json:"took_ms"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	logPath := prefix + ".deliveries.jsonl"
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:  log,
		path: logPath,
		file: f,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendDelivery(ctx context.Context, e DeliveryEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("delivery log closed")
	}
	enc := json.NewEncoder(s.file)
	return enc.Encode(toRecord(e))
}

func (s *fileStore) RecentDeliveries(ctx context.Context, limit int) ([]DeliveryEntry, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAllLocked()
	if err != nil {
		return nil, err
	}
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	out := make([]DeliveryEntry, 0, len(records))
	// Newest first.
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, fromRecord(records[i]))
	}
	return out, nil
}

func (s *fileStore) PruneDeliveries(ctx context.Context, olderThan time.Time) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return 0, errors.New("delivery log closed")
	}

	records, err := s.readAllLocked()
	if err != nil {
		return 0, err
	}
	cutoff := olderThan.UnixMilli()
	kept := records[:0]
	for _, r := range records {
		if r.At >= cutoff {
			kept = append(kept, r)
		}
	}
	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(f)
	for _, r := range kept {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return 0, err
		}
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return 0, err
	}

	// Reopen the append handle on the rewritten file.
	_ = s.file.Close()
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.file = nil
		return removed, err
	}
	s.file = nf
	return removed, nil
}

func (s *fileStore) readAllLocked() ([]deliveryRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []deliveryRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var r deliveryRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}

func toRecord(e DeliveryEntry) deliveryRecord {
	return deliveryRecord{
		At:        e.At.UnixMilli(),
		RequestID: e.RequestID,
		Recipient: e.Recipient,
		Outcome:   e.Outcome,
		Reason:    e.Reason,
		Attempts:  e.Attempts,
		TookMS:    e.TookMS,
	}
}

func fromRecord(r deliveryRecord) DeliveryEntry {
	return DeliveryEntry{
		At:        time.UnixMilli(r.At),
		RequestID: r.RequestID,
		Recipient: r.Recipient,
		Outcome:   r.Outcome,
		Reason:    r.Reason,
		Attempts:  r.Attempts,
		TookMS:    r.TookMS,
	}
}
