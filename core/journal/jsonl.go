package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/fleetcmd/core/events"
)

// JSONLJournal writes one JSON object per line and rotates the file by size.
type JSONLJournal struct {
	mu   sync.Mutex
	out  *lumberjack.Logger
	path string
}

// NewJSONLJournal opens a rotating journal at path. Size is in megabytes, age
// in days.
func NewJSONLJournal(path string, maxSizeMB, maxBackups, maxAgeDays int) (*JSONLJournal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &JSONLJournal{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		},
		path: path,
	}, nil
}

// Append writes ev as a single line.
func (j *JSONLJournal) Append(_ context.Context, ev events.CommandEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.out.Write(append(b, '\n'))
	return err
}

// Query scans the current file and every rotated backup.
func (j *JSONLJournal) Query(ctx context.Context, q Query) ([]events.CommandEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var res []events.CommandEvent
	for _, name := range j.files() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := scanFile(name, q)
		if err != nil {
			return nil, err
		}
		res = append(res, found...)
	}
	sortByTime(res)
	return res, nil
}

// files lists rotated backups oldest first, then the live file.
func (j *JSONLJournal) files() []string {
	ext := filepath.Ext(j.path)
	backups, _ := filepath.Glob(strings.TrimSuffix(j.path, ext) + "-*" + ext)
	sort.Strings(backups)
	return append(backups, j.path)
}

func scanFile(name string, q Query) ([]events.CommandEvent, error) {
	f, err := os.Open(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var res []events.CommandEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev events.CommandEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if q.Match(ev) {
			res = append(res, ev)
		}
	}
	return res, scanner.Err()
}

// Close closes the underlying writer.
func (j *JSONLJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.out.Close()
}
