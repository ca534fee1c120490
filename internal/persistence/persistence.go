// Package persistence implements the durable job log (spec component
// C4): a line-delimited, self-describing JSONL file rewritten atomically
// on every terminal or status-changing event, and read back in full on
// startup to repopulate the registry.
package persistence

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"taskstation/internal/jobtypes"
)

// Record is the on-disk shape of one job, per spec §6.2. Extra/unknown
// fields are ignored on read; an unrecognized Status is treated as
// Queued.
type Record struct {
	ID            string            `json:"id"`
	Task          string            `json:"task"`
	Priority      string            `json:"priority"`
	Status        string            `json:"status"`
	Params        map[string]string `json:"params"`
	Result        string            `json:"result"`
	CreatedAtMS   int64             `json:"created_at_ms"`
	StartedAtMS   *int64            `json:"started_at"`
	FinishedAtMS  *int64            `json:"finished_at"`
	TimeoutSecs   int64             `json:"timeout_secs"`
	CancelFlag    bool              `json:"cancel_flag"`
}

// Log is a process-wide, mutex-serialized append-with-rewrite journal.
// Construct with Open; the zero value is not usable.
type Log struct {
	mu   sync.Mutex
	path string
}

// Open prepares the log at path, creating its parent directory if
// needed. It does not read the file; call Load for recovery.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Log{path: path}, nil
}

// Load reads every record currently on disk. Missing file is not an
// error: it just means a fresh start.
func (l *Log) Load() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // corrupt line, skip rather than abort recovery
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Save rewrites the log with rec replacing any existing line sharing its
// id: read the existing file, drop the matching line, append the new
// one, write to a temp file, then atomically rename over the original.
// Persistence failures are the caller's to log; they never abort the
// caller's job-state transition (§4.3 note 5).
func (l *Log) Save(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.readAllLocked()
	if err != nil {
		return err
	}

	out := existing[:0]
	for _, line := range existing {
		var r Record
		if err := json.Unmarshal(line, &r); err == nil && r.ID == rec.ID {
			continue
		}
		out = append(out, line)
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	out = append(out, encoded)

	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, line := range out {
		if _, err := w.Write(line); err != nil {
			f.Close()
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// Delete removes any line matching id. Used when a submission must be
// rolled back after losing an admission race (§4.3 step 6).
func (l *Log) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.readAllLocked()
	if err != nil {
		return err
	}
	out := existing[:0]
	for _, line := range existing {
		var r Record
		if err := json.Unmarshal(line, &r); err == nil && r.ID == id {
			continue
		}
		out = append(out, line)
	}

	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, line := range out {
		if _, err := w.Write(line); err != nil {
			f.Close()
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

func (l *Log) readAllLocked() ([][]byte, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		if len(line) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// RecordFromJob builds the wire Record for a job at the instant of the
// call.
func RecordFromJob(j *jobtypes.Job) Record {
	rec := Record{
		ID:          j.ID,
		Task:        j.Task,
		Priority:    j.Priority.String(),
		Status:      string(j.Status()),
		Params:      j.Params,
		Result:      j.Result(),
		CreatedAtMS: j.CreatedAt.UnixMilli(),
		TimeoutSecs: int64(j.Timeout.Seconds()),
		CancelFlag:  j.CancelFlag(),
	}
	if st := j.StartedAt(); st != nil {
		ms := st.UnixMilli()
		rec.StartedAtMS = &ms
	}
	if ft := j.FinishedAt(); ft != nil {
		ms := ft.UnixMilli()
		rec.FinishedAtMS = &ms
	}
	return rec
}

// StatusOrQueued maps a raw on-disk status string to jobtypes.Status,
// treating anything unrecognized as Queued per the recovery tolerance in
// §6.2.
func StatusOrQueued(raw string) jobtypes.Status {
	switch raw {
	case string(jobtypes.Queued), string(jobtypes.Running):
		return jobtypes.Status(raw)
	case string(jobtypes.Done), string(jobtypes.Canceled), string(jobtypes.Timeout):
		return jobtypes.Status(raw)
	}
	if jobtypes.IsError(jobtypes.Status(raw)) {
		return jobtypes.Status(raw)
	}
	return jobtypes.Queued
}
