package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tamtunnel/spacecomms/internal/model"
)

// FileJournal appends one JSON line per mutation to a single segment file
// (dir/records.jsonl) shared by all record classes; Checkpoint writes a
// separate checkpoint file capturing the full store snapshot
// (spec §6: "append-only log segments per record class, plus a checkpoint
// file; layout is implementation-defined but must recover the same
// invariants on restart").
type FileJournal struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// NewFileJournal opens (creating if needed) the append-only segment file
// under dir/records.jsonl.
func NewFileJournal(dir string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create storage directory")
	}
	path := filepath.Join(dir, "records.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open journal segment")
	}
	return &FileJournal{file: f, w: bufio.NewWriter(f)}, nil
}

func (j *FileJournal) Append(entry journalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal journal entry")
	}
	if _, err := j.w.Write(data); err != nil {
		return errors.Wrap(err, "write journal entry")
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	return j.w.Flush()
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.w.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

// Checkpoint writes the full current store state to dir/checkpoint.json.
// The segment file is not truncated, so Recover still replays all of it.
func Checkpoint(dir string, s *Store) error {
	s.mu.RLock()
	snapshot := struct {
		CDMs      []model.CDM      `json:"cdms"`
		Objects   []model.Object   `json:"objects"`
		Maneuvers []model.Maneuver `json:"maneuvers"`
		At        time.Time        `json:"at"`
	}{At: time.Now().UTC()}
	for _, c := range s.cdms {
		snapshot.CDMs = append(snapshot.CDMs, c)
	}
	for _, o := range s.objects {
		snapshot.Objects = append(snapshot.Objects, o)
	}
	for _, m := range s.maneuvers {
		snapshot.Maneuvers = append(snapshot.Maneuvers, m)
	}
	s.mu.RUnlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal checkpoint")
	}
	path := filepath.Join(dir, "checkpoint.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write checkpoint")
	}
	return os.Rename(tmp, path)
}

// Recover rebuilds a Store from dir's checkpoint (if present) followed by
// replaying every entry in the segment file, including those written
// before the checkpoint.
func Recover(dir string, retention Retention) (*Store, error) {
	s := New(retention, nil)

	checkpointPath := filepath.Join(dir, "checkpoint.json")
	if data, err := os.ReadFile(checkpointPath); err == nil {
		var snapshot struct {
			CDMs      []model.CDM      `json:"cdms"`
			Objects   []model.Object   `json:"objects"`
			Maneuvers []model.Maneuver `json:"maneuvers"`
		}
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return nil, errors.Wrap(err, "parse checkpoint")
		}
		for _, c := range snapshot.CDMs {
			s.cdms[c.CDMID] = c
		}
		for _, o := range snapshot.Objects {
			s.objects[o.ObjectID] = o
		}
		for _, m := range snapshot.Maneuvers {
			s.maneuvers[m.ManeuverID] = m
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "read checkpoint")
	}

	segmentPath := filepath.Join(dir, "records.jsonl")
	f, err := os.Open(segmentPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.Wrap(err, "open journal segment")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var entry journalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		replay(s, entry)
	}
	return s, scanner.Err()
}

func replay(s *Store, entry journalEntry) {
	switch entry.Kind {
	case journalCDM, journalCDMWithdraw:
		if entry.CDM != nil {
			s.cdms[entry.CDM.CDMID] = *entry.CDM
		}
	case journalObject, journalObjectWithdraw:
		if entry.Object != nil {
			s.objects[entry.Object.ObjectID] = *entry.Object
		}
	case journalManeuver:
		if entry.Maneuver != nil {
			s.maneuvers[entry.Maneuver.ManeuverID] = *entry.Maneuver
		}
	}
}
