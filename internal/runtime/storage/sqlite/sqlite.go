// Package sqlite stores measurements as a series of SQLite databases, one
// per physical file. Each file carries the full channel table so that it can
// be read on its own.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/drblury/protomeas/internal/runtime/datatype"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
	"github.com/drblury/protomeas/internal/runtime/jsoncodec"
	"github.com/drblury/protomeas/internal/runtime/logging"
	"github.com/drblury/protomeas/internal/runtime/metrics"
	"github.com/drblury/protomeas/internal/runtime/storage"
)

const (
	// FileExtension is appended to every data file.
	FileExtension = ".sqlite"
	// ManifestSuffix is appended to the base name for the manifest file.
	ManifestSuffix = ".manifest.json"

	rowBits = 48
	rowMask = 1<<rowBits - 1
)

const schema = `
CREATE TABLE IF NOT EXISTS channels (
	name TEXT PRIMARY KEY,
	type_name TEXT NOT NULL,
	encoding TEXT NOT NULL,
	descriptor BLOB
);

CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY,
	channel TEXT NOT NULL,
	rcv_timestamp INTEGER NOT NULL,
	snd_timestamp INTEGER NOT NULL,
	clock INTEGER NOT NULL,
	payload BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_channel ON entries(channel, id);
CREATE INDEX IF NOT EXISTS idx_entries_rcv ON entries(rcv_timestamp);
`

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for file lifecycle events.
func WithLogger(log logging.ServiceLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics records appended entries and file splits.
func WithMetrics(m *metrics.Measurement) Option {
	return func(e *Engine) { e.metrics = m }
}

type file struct {
	index int
	name  string
	db    *sql.DB

	mu      sync.Mutex
	size    int64
	entries int
}

// Engine implements storage.Engine.
type Engine struct {
	log     logging.ServiceLogger
	metrics *metrics.Measurement

	mode        storage.Mode
	dir         string
	baseName    string
	baseNameSet bool
	maxSize     int64
	onPreSplit  func(next string)

	files    []*file
	channels map[string]datatype.Descriptor
	counts   map[string]int
	closed   bool
}

// New creates an engine. Call Open before use.
func New(opts ...Option) *Engine {
	e := &Engine{
		baseName: storage.DefaultFileBaseName,
		maxSize:  storage.DefaultMaxSizePerFile,
		channels: make(map[string]datatype.Descriptor),
		counts:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logging.Component(e.log, "storage")
	return e
}

// FileName returns the name of the index-th file of a measurement.
func FileName(base string, index int) string {
	if index == 0 {
		return base + FileExtension
	}
	return base + "_" + strconv.Itoa(index) + FileExtension
}

func (e *Engine) SetMaxSizePerFile(size int64) {
	if size > 0 {
		e.maxSize = size
	}
}

func (e *Engine) SetFileBaseName(name string) {
	if name == "" {
		return
	}
	e.baseName = name
	e.baseNameSet = true
}

func (e *Engine) OnPreSplit(fn func(next string)) { e.onPreSplit = fn }

// Files returns the paths of the physical files in order.
func (e *Engine) Files() []string {
	paths := make([]string, len(e.files))
	for i, f := range e.files {
		paths[i] = filepath.Join(e.dir, f.name)
	}
	return paths
}

// Open starts a measurement in the directory path (ModeCreate) or opens an
// existing one (ModeRead). For reading, path is either a directory or a
// single data file.
func (e *Engine) Open(path string, mode storage.Mode) error {
	if e.mode != 0 {
		return fmt.Errorf("protomeas: engine already opened in %s mode", e.mode)
	}
	switch mode {
	case storage.ModeCreate:
		if err := os.MkdirAll(path, 0o755); err != nil {
			return errspkg.NewIOError("create directory", path, err)
		}
		e.dir = path
	case storage.ModeRead:
		if err := e.openForRead(path); err != nil {
			e.closeFiles()
			return err
		}
	default:
		return fmt.Errorf("protomeas: unsupported storage mode %s", mode)
	}
	e.mode = mode
	return nil
}

func (e *Engine) openForRead(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errspkg.NewIOError("open measurement", path, err)
	}

	var names []string
	if info.IsDir() {
		e.dir = path
		if names, err = e.discover(path); err != nil {
			return err
		}
	} else {
		e.dir = filepath.Dir(path)
		names = []string{filepath.Base(path)}
	}

	for i, name := range names {
		full := filepath.Join(e.dir, name)
		db, err := sql.Open("sqlite3", "file:"+full+"?mode=ro&_busy_timeout=5000")
		if err != nil {
			return errspkg.NewIOError("open file", full, err)
		}
		f := &file{index: i, name: name, db: db}
		e.files = append(e.files, f)
		if err := e.loadChannels(f); err != nil {
			return errspkg.NewIOError("read channels", full, err)
		}
	}
	e.log.Debug("Opened measurement", logging.LogFields{"path": path, "files": len(e.files)})
	return nil
}

// discover lists the data files of the measurement in dir, preferring the
// manifest order.
func (e *Engine) discover(dir string) ([]string, error) {
	manifests, err := filepath.Glob(filepath.Join(dir, "*"+ManifestSuffix))
	if err != nil {
		return nil, errspkg.NewIOError("list manifests", dir, err)
	}

	manifestPath := ""
	switch {
	case e.baseNameSet:
		candidate := filepath.Join(dir, e.baseName+ManifestSuffix)
		if _, err := os.Stat(candidate); err == nil {
			manifestPath = candidate
		}
	case len(manifests) == 1:
		manifestPath = manifests[0]
	case len(manifests) > 1:
		return nil, errspkg.NewIOError("open measurement", dir,
			fmt.Errorf("%d manifests found, set a file base name to choose one", len(manifests)))
	}

	if manifestPath != "" {
		var m storage.Manifest
		if err := jsoncodec.ReadFile(manifestPath, &m); err != nil {
			return nil, errspkg.NewIOError("read manifest", manifestPath, err)
		}
		e.baseName = m.BaseName
		if len(m.Files) == 0 {
			return nil, errspkg.NewIOError("open measurement", dir, os.ErrNotExist)
		}
		return m.Files, nil
	}

	names, err := scanDataFiles(dir, e.baseName, e.baseNameSet)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errspkg.NewIOError("open measurement", dir, os.ErrNotExist)
	}
	return names, nil
}

// scanDataFiles orders <base>.sqlite, <base>_1.sqlite, ... by index. Without
// an explicit base name every data file in dir is taken.
func scanDataFiles(dir, base string, filterBase bool) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+FileExtension))
	if err != nil {
		return nil, errspkg.NewIOError("list files", dir, err)
	}

	type candidate struct {
		base  string
		index int
		name  string
	}
	var found []candidate
	for _, match := range matches {
		name := filepath.Base(match)
		b, idx := splitFileName(name)
		if filterBase && b != base {
			continue
		}
		found = append(found, candidate{base: b, index: idx, name: name})
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].base != found[j].base {
			return found[i].base < found[j].base
		}
		return found[i].index < found[j].index
	})

	names := make([]string, len(found))
	for i, c := range found {
		names[i] = c.name
	}
	return names, nil
}

func splitFileName(name string) (string, int) {
	stem := strings.TrimSuffix(name, FileExtension)
	if at := strings.LastIndexByte(stem, '_'); at > 0 {
		if idx, err := strconv.Atoi(stem[at+1:]); err == nil && idx > 0 {
			return stem[:at], idx
		}
	}
	return stem, 0
}

func (e *Engine) loadChannels(f *file) error {
	rows, err := f.db.Query(`SELECT name, type_name, encoding, descriptor FROM channels`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var dt datatype.Descriptor
		if err := rows.Scan(&name, &dt.Name, &dt.Encoding, &dt.Descriptor); err != nil {
			return err
		}
		if existing, ok := e.channels[name]; !ok || existing.IsZero() {
			e.channels[name] = dt
		}
	}
	return rows.Err()
}

func (e *Engine) SetChannelType(name string, dt datatype.Descriptor) error {
	if err := e.writable(); err != nil {
		return err
	}
	if name == "" {
		return errspkg.ErrChannelNameRequired
	}
	if existing, ok := e.channels[name]; ok && !existing.IsZero() {
		if existing.Equal(dt) {
			return nil
		}
		return &errspkg.ChannelTypeConflictError{Channel: name, Existing: existing, Requested: dt.Clone()}
	}

	f, err := e.currentFile()
	if err != nil {
		return err
	}
	if err := upsertChannel(f, name, dt); err != nil {
		return errspkg.NewIOError("register channel", e.path(f), err)
	}
	e.channels[name] = dt.Clone()
	return nil
}

func upsertChannel(f *file, name string, dt datatype.Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.db.Exec(`
		INSERT INTO channels (name, type_name, encoding, descriptor) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET type_name = excluded.type_name,
			encoding = excluded.encoding, descriptor = excluded.descriptor
	`, name, dt.Name, dt.Encoding, dt.Descriptor)
	return err
}

func (e *Engine) ChannelType(name string) (datatype.Descriptor, error) {
	dt, ok := e.channels[name]
	if !ok {
		return datatype.Descriptor{}, &errspkg.NotFoundError{Channel: name}
	}
	return dt.Clone(), nil
}

func (e *Engine) ChannelNames() []string {
	names := make([]string, 0, len(e.channels))
	for name := range e.channels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (e *Engine) HasChannel(name string) bool {
	_, ok := e.channels[name]
	return ok
}

func (e *Engine) AddEntry(payload []byte, sndTimestamp, rcvTimestamp int64, name string, counter int32) error {
	if err := e.writable(); err != nil {
		return err
	}
	if name == "" {
		return errspkg.ErrChannelNameRequired
	}
	if payload == nil {
		payload = []byte{}
	}

	f, err := e.fileFor(len(payload))
	if err != nil {
		return err
	}
	if _, ok := e.channels[name]; !ok {
		if err := upsertChannel(f, name, datatype.Descriptor{}); err != nil {
			return errspkg.NewIOError("register channel", e.path(f), err)
		}
		e.channels[name] = datatype.Descriptor{}
	}

	f.mu.Lock()
	_, err = f.db.Exec(`
		INSERT INTO entries (channel, rcv_timestamp, snd_timestamp, clock, payload)
		VALUES (?, ?, ?, ?, ?)
	`, name, rcvTimestamp, sndTimestamp, counter, payload)
	if err == nil {
		f.size += int64(len(payload))
		f.entries++
	}
	f.mu.Unlock()
	if err != nil {
		return errspkg.NewIOError("add entry", e.path(f), err)
	}

	e.counts[name]++
	e.metrics.RecordEntry(name, len(payload))
	return nil
}

// fileFor returns the file that takes the next entry of size bytes. A file
// accepts an entry while it stays within the size limit, and always accepts
// its first entry.
func (e *Engine) fileFor(size int) (*file, error) {
	f, err := e.currentFile()
	if err != nil {
		return nil, err
	}
	if f.entries == 0 || f.size+int64(size) <= e.maxSize {
		return f, nil
	}
	return e.split()
}

func (e *Engine) currentFile() (*file, error) {
	if len(e.files) == 0 {
		return e.createFile()
	}
	return e.files[len(e.files)-1], nil
}

func (e *Engine) split() (*file, error) {
	next := FileName(e.baseName, len(e.files))
	if e.onPreSplit != nil {
		e.onPreSplit(next)
	}

	f, err := e.createFile()
	if err != nil {
		return nil, err
	}
	for _, name := range e.ChannelNames() {
		if err := upsertChannel(f, name, e.channels[name]); err != nil {
			return nil, errspkg.NewIOError("register channel", e.path(f), err)
		}
	}
	if err := e.writeManifest(); err != nil {
		return nil, err
	}

	e.metrics.RecordSplit(e.baseName, len(e.files))
	e.log.Info("Started new measurement file", logging.LogFields{"file": f.name, "files": len(e.files)})
	return f, nil
}

func (e *Engine) createFile() (*file, error) {
	name := FileName(e.baseName, len(e.files))
	full := filepath.Join(e.dir, name)
	if _, err := os.Stat(full); err == nil {
		return nil, errspkg.NewIOError("create file", full, os.ErrExist)
	}

	db, err := sql.Open("sqlite3", full+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errspkg.NewIOError("create file", full, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errspkg.NewIOError("initialize schema", full, err)
	}

	f := &file{index: len(e.files), name: name, db: db}
	e.files = append(e.files, f)
	e.metrics.SetFiles(e.baseName, len(e.files))
	return f, nil
}

func (e *Engine) EntriesInfo(name string) ([]storage.EntryInfo, error) {
	return e.EntriesInfoRange(name, 0, 0)
}

func (e *Engine) EntriesInfoRange(name string, begin, end int64) ([]storage.EntryInfo, error) {
	if !e.HasChannel(name) {
		return nil, &errspkg.NotFoundError{Channel: name}
	}

	query := `SELECT id, rcv_timestamp, snd_timestamp, clock FROM entries WHERE channel = ?`
	args := []any{name}
	if begin != 0 {
		query += ` AND rcv_timestamp >= ?`
		args = append(args, begin)
	}
	if end != 0 {
		query += ` AND rcv_timestamp <= ?`
		args = append(args, end)
	}
	query += ` ORDER BY id`

	var infos []storage.EntryInfo
	for _, f := range e.files {
		batch, err := queryEntries(f, query, args)
		if err != nil {
			return nil, errspkg.NewIOError("read entries", e.path(f), err)
		}
		infos = append(infos, batch...)
	}
	return infos, nil
}

func queryEntries(f *file, query string, args []any) ([]storage.EntryInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rows, err := f.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []storage.EntryInfo
	for rows.Next() {
		var rowID int64
		var info storage.EntryInfo
		if err := rows.Scan(&rowID, &info.RcvTimestamp, &info.SndTimestamp, &info.Clock); err != nil {
			return nil, err
		}
		info.ID = makeID(f.index, rowID)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (e *Engine) EntryDataSize(id storage.EntryID) (int, error) {
	var size int
	if err := e.queryEntry(id, `SELECT length(payload) FROM entries WHERE id = ?`, &size); err != nil {
		return 0, err
	}
	return size, nil
}

func (e *Engine) EntryData(id storage.EntryID) ([]byte, error) {
	var payload []byte
	if err := e.queryEntry(id, `SELECT payload FROM entries WHERE id = ?`, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = []byte{}
	}
	return payload, nil
}

func (e *Engine) queryEntry(id storage.EntryID, query string, dest any) error {
	index, rowID := splitID(id)
	if index < 0 || index >= len(e.files) {
		return errspkg.ErrEntryNotFound
	}
	f := e.files[index]

	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.db.QueryRow(query, rowID).Scan(dest)
	if errors.Is(err, sql.ErrNoRows) {
		return errspkg.ErrEntryNotFound
	}
	if err != nil {
		return errspkg.NewIOError("read entry", e.path(f), err)
	}
	return nil
}

func (e *Engine) MinTimestamp() int64 {
	return e.timestampBound(`SELECT MIN(rcv_timestamp) FROM entries`, func(a, b int64) bool { return a < b })
}

func (e *Engine) MaxTimestamp() int64 {
	return e.timestampBound(`SELECT MAX(rcv_timestamp) FROM entries`, func(a, b int64) bool { return a > b })
}

func (e *Engine) timestampBound(query string, better func(a, b int64) bool) int64 {
	var (
		bound int64
		found bool
	)
	for _, f := range e.files {
		var v sql.NullInt64
		f.mu.Lock()
		err := f.db.QueryRow(query).Scan(&v)
		f.mu.Unlock()
		if err != nil {
			e.log.Error("Failed to read timestamp bound", err, logging.LogFields{"file": f.name})
			continue
		}
		if v.Valid && (!found || better(v.Int64, bound)) {
			bound, found = v.Int64, true
		}
	}
	return bound
}

// Close writes the manifest of a new measurement and closes every file.
// Errors of individual files are joined; files after a failure are still
// closed.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.mode == storage.ModeCreate && len(e.files) > 0 {
		errs = append(errs, e.writeManifest())
	}
	errs = append(errs, e.closeFiles())
	e.log.Debug("Closed measurement", logging.LogFields{"dir": e.dir, "files": len(e.files)})
	return errors.Join(errs...)
}

func (e *Engine) closeFiles() error {
	var errs []error
	for _, f := range e.files {
		f.mu.Lock()
		// Finished files are left in rollback journal mode so they can be
		// opened read-only without the WAL side files.
		if e.mode == storage.ModeCreate {
			if _, err := f.db.Exec(`PRAGMA journal_mode=DELETE`); err != nil {
				errs = append(errs, errspkg.NewIOError("checkpoint file", e.path(f), err))
			}
		}
		if err := f.db.Close(); err != nil {
			errs = append(errs, errspkg.NewIOError("close file", e.path(f), err))
		}
		f.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (e *Engine) writeManifest() error {
	m := storage.Manifest{
		BaseName:       e.baseName,
		Files:          make([]string, len(e.files)),
		MaxSizePerFile: e.maxSize,
	}
	for i, f := range e.files {
		m.Files[i] = f.name
	}
	for _, name := range e.ChannelNames() {
		dt := e.channels[name]
		m.Channels = append(m.Channels, storage.ManifestChannel{
			Name:     name,
			TypeName: dt.Name,
			Encoding: dt.Encoding,
			Entries:  e.counts[name],
		})
	}

	path := filepath.Join(e.dir, e.baseName+ManifestSuffix)
	if err := jsoncodec.WriteFile(path, m); err != nil {
		return errspkg.NewIOError("write manifest", path, err)
	}
	return nil
}

func (e *Engine) writable() error {
	switch {
	case e.closed:
		return errspkg.ErrClosed
	case e.mode != storage.ModeCreate:
		return errspkg.ErrReadOnly
	}
	return nil
}

func (e *Engine) path(f *file) string { return filepath.Join(e.dir, f.name) }

func makeID(index int, rowID int64) storage.EntryID {
	return storage.EntryID(int64(index)<<rowBits | rowID&rowMask)
}

func splitID(id storage.EntryID) (int, int64) {
	return int(int64(id) >> rowBits), int64(id) & rowMask
}

var (
	_ storage.Engine   = (*Engine)(nil)
	_ storage.Splitter = (*Engine)(nil)
)
