package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "festivalbot/pkg/logx"
)

const compactEvery = 1000

// fileStore keeps the ledger in memory and persists it as:
//   - <prefix>.snapshot.json (full state, replaced atomically on compaction)
//   - <prefix>.journal.jsonl (append-only operations since the snapshot)
//   - <prefix>.journal.lock  (flock guarding journal/snapshot across processes)
//
// Every operation takes the journal lock and first replays whatever other
// processes appended since the last look.
type fileStore struct {
	log   logx.Logger
	locks keyLocks

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	journalLock  *os.File

	snapInfo os.FileInfo // identity of the snapshot we loaded
	offset   int64       // journal bytes already applied

	records map[Key][]DeliveryRecord
	targets map[string]Target

	writes int
}

type journalOp struct {
	Op     string          `json:"op"`
	Record *DeliveryRecord `json:"record,omitempty"`
	Target *Target         `json:"target,omitempty"`
	Before string          `json:"before,omitempty"`
}

const (
	opDeliver = "deliver"
	opTarget  = "target"
	opPrune   = "prune"
)

type snapshot struct {
	Records []DeliveryRecord `json:"records"`
	Targets []Target         `json:"targets"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, persistErr("open", errors.New("storage.path is required for file driver"))
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, persistErr("open", err)
	}

	jl, err := os.OpenFile(prefix+".journal.lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, persistErr("open", err)
	}
	jf, err := os.OpenFile(prefix+".journal.jsonl", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		_ = jl.Close()
		return nil, persistErr("open", err)
	}

	s := &fileStore{
		log:          log,
		locks:        keyLocks{prefix: prefix},
		snapshotPath: prefix + ".snapshot.json",
		journal:      jf,
		journalLock:  jl,
	}

	unlock, err := flockFile(jl)
	if err != nil {
		_ = s.Close()
		return nil, persistErr("open", err)
	}
	err = s.reloadLocked()
	unlock()
	if err != nil {
		_ = s.Close()
		return nil, persistErr("open", err)
	}

	s.log.Debug("ledger opened",
		logx.String("prefix", prefix),
		logx.Int("keys", len(s.records)),
		logx.Int("targets", len(s.targets)),
	)
	return s, nil
}

// withJournal runs fn holding both the in-process mutex and the journal flock,
// after catching up on other processes' writes.
func (s *fileStore) withJournal(op string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return persistErr(op, errClosed)
	}

	unlock, err := flockFile(s.journalLock)
	if err != nil {
		return persistErr(op, err)
	}
	defer unlock()

	if err := s.refreshLocked(); err != nil {
		return persistErr(op, err)
	}
	return persistErr(op, fn())
}

func (s *fileStore) HasDelivered(ctx context.Context, k Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, persistErr("has_delivered", err)
	}
	var ok bool
	err := s.withJournal("has_delivered", func() error {
		ok = len(s.records[k]) > 0
		return nil
	})
	return ok, err
}

func (s *fileStore) History(ctx context.Context, k Key) ([]DeliveryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistErr("history", err)
	}
	var out []DeliveryRecord
	err := s.withJournal("history", func() error {
		out = append(out, s.records[k]...)
		return nil
	})
	return out, err
}

func (s *fileStore) RecordDelivery(ctx context.Context, r DeliveryRecord) error {
	if err := ctx.Err(); err != nil {
		return persistErr("record", err)
	}
	if err := validateRecord(r); err != nil {
		return persistErr("record", err)
	}
	return s.withJournal("record", func() error {
		return s.commitLocked(journalOp{Op: opDeliver, Record: &r})
	})
}

func (s *fileStore) RegisterTarget(ctx context.Context, conversationID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, persistErr("register_target", err)
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return false, persistErr("register_target", errors.New("conversation id is empty"))
	}
	var added bool
	err := s.withJournal("register_target", func() error {
		if _, ok := s.targets[conversationID]; ok {
			return nil
		}
		op := journalOp{Op: opTarget, Target: &Target{ConversationID: conversationID, RegisteredAt: at}}
		if err := s.commitLocked(op); err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

func (s *fileStore) Targets(ctx context.Context) ([]Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistErr("targets", err)
	}
	var out []Target
	err := s.withJournal("targets", func() error {
		out = make([]Target, 0, len(s.targets))
		for _, t := range s.targets {
			out = append(out, t)
		}
		return nil
	})
	sortTargets(out)
	return out, err
}

// Prune drops old records and compacts, so the journal never grows with
// records that are already gone.
func (s *fileStore) Prune(ctx context.Context, before string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, persistErr("prune", err)
	}
	var n int
	err := s.withJournal("prune", func() error {
		n = countBefore(s.records, before)
		if n == 0 {
			return nil
		}
		if err := s.commitLocked(journalOp{Op: opPrune, Before: before}); err != nil {
			return err
		}
		if err := s.compactLocked(); err != nil {
			s.log.Warn("ledger compact failed", logx.Err(err))
		}
		return nil
	})
	return n, err
}

func (s *fileStore) Lock(ctx context.Context, k Key) (func(), error) {
	return s.locks.Lock(ctx, k)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
		s.journal = nil
	}
	if s.journalLock != nil {
		errs = append(errs, s.journalLock.Close())
		s.journalLock = nil
	}
	return errors.Join(errs...)
}

// commitLocked makes op durable in the journal, then applies it in memory.
func (s *fileStore) commitLocked(op journalOp) error {
	b, err := json.Marshal(op)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := s.journal.Seek(s.offset, io.SeekStart); err != nil {
		return err
	}
	if _, err := s.journal.Write(b); err != nil {
		return err
	}
	if err := s.journal.Sync(); err != nil {
		return err
	}
	s.offset += int64(len(b))
	s.applyLocked(op)

	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("ledger compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) applyLocked(op journalOp) {
	switch op.Op {
	case opDeliver:
		if op.Record == nil {
			return
		}
		k := op.Record.Key()
		// a crash between snapshot rename and journal truncate replays records twice
		for _, r := range s.records[k] {
			if r.ID == op.Record.ID {
				return
			}
		}
		s.records[k] = append(s.records[k], *op.Record)
	case opTarget:
		if op.Target != nil {
			if _, ok := s.targets[op.Target.ConversationID]; !ok {
				s.targets[op.Target.ConversationID] = *op.Target
			}
		}
	case opPrune:
		for k := range s.records {
			if k.Date < op.Before {
				delete(s.records, k)
			}
		}
	}
}

// refreshLocked catches up with the files. A replaced snapshot means another
// process compacted, so everything is reloaded.
func (s *fileStore) refreshLocked() error {
	fi, err := os.Stat(s.snapshotPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if s.snapInfo != nil {
			return s.reloadLocked()
		}
	case err != nil:
		return err
	case s.snapInfo == nil || !os.SameFile(fi, s.snapInfo) || !fi.ModTime().Equal(s.snapInfo.ModTime()):
		return s.reloadLocked()
	}

	jfi, err := s.journal.Stat()
	if err != nil {
		return err
	}
	if jfi.Size() < s.offset {
		return s.reloadLocked()
	}
	return s.replayLocked()
}

func (s *fileStore) reloadLocked() error {
	s.records = map[Key][]DeliveryRecord{}
	s.targets = map[string]Target{}
	s.offset = 0
	s.snapInfo = nil

	f, err := os.Open(s.snapshotPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	default:
		var snap snapshot
		derr := json.NewDecoder(f).Decode(&snap)
		fi, serr := f.Stat()
		_ = f.Close()
		if derr != nil {
			return derr
		}
		if serr != nil {
			return serr
		}
		s.snapInfo = fi
		for _, r := range snap.Records {
			k := r.Key()
			s.records[k] = append(s.records[k], r)
		}
		for _, t := range snap.Targets {
			s.targets[t.ConversationID] = t
		}
	}
	return s.replayLocked()
}

// replayLocked applies complete journal lines past offset. A trailing line
// without a newline is a torn write from a crashed process (writers hold the
// flock), so it is cut off.
func (s *fileStore) replayLocked() error {
	if _, err := s.journal.Seek(s.offset, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(s.journal)
	if err != nil {
		return err
	}

	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			s.log.Warn("ledger journal has a partial last record; truncating",
				logx.Int64("offset", s.offset),
				logx.Int("bytes", len(data)),
			)
			return s.journal.Truncate(s.offset)
		}
		line := bytes.TrimSpace(data[:i])
		data = data[i+1:]
		s.offset += int64(i + 1)
		if len(line) == 0 {
			continue
		}

		var op journalOp
		if err := json.Unmarshal(line, &op); err != nil {
			s.log.Warn("ledger journal line skipped", logx.Int64("offset", s.offset), logx.Err(err))
			continue
		}
		s.applyLocked(op)
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	snap := snapshot{Records: []DeliveryRecord{}, Targets: []Target{}}
	for _, rs := range s.records {
		snap.Records = append(snap.Records, rs...)
	}
	sort.SliceStable(snap.Records, func(i, j int) bool {
		return snap.Records[i].DeliveredAt.Before(snap.Records[j].DeliveredAt)
	})
	for _, t := range s.targets {
		snap.Targets = append(snap.Targets, t)
	}
	sortTargets(snap.Targets)

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	s.offset = 0

	fi, err := os.Stat(s.snapshotPath)
	if err != nil {
		return err
	}
	s.snapInfo = fi
	return nil
}

func countBefore(records map[Key][]DeliveryRecord, before string) int {
	n := 0
	for k, rs := range records {
		if k.Date < before {
			n += len(rs)
		}
	}
	return n
}

func sortTargets(ts []Target) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].RegisteredAt.Equal(ts[j].RegisteredAt) {
			return ts[i].RegisteredAt.Before(ts[j].RegisteredAt)
		}
		return ts[i].ConversationID < ts[j].ConversationID
	})
}
