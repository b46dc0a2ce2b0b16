// Package history persists line-oriented serial traffic to timestamped log
// files. Fragments are buffered until a newline arrives, so a log record is
// never written for a partial line.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"serial-logterm/pkg/helpers/syncutil"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	// DefaultTag is the source tag used while no port is connected.
	DefaultTag = "NO_PORT"

	// ArchiveMessage is the record written to a fresh log after Archive.
	ArchiveMessage = "Log archived by user"

	tagWidth      = 7
	timeLayout    = "15:04:05.000"
	dateLayout    = "2006-01-02"
	minPathLength = 6
)

var (
	// ErrArchiveFailed is returned when the active log could not be renamed.
	ErrArchiveFailed = errors.New("log archive failed")
	// ErrLogInUse is returned when a log file could not be removed.
	ErrLogInUse = errors.New("log is open in another program")
	// ErrInvalidPath is returned for empty or near-empty log paths.
	ErrInvalidPath = errors.New("log path too short")
)

// Record is one complete line of traffic.
type Record struct {
	Time time.Time `json:"time"`
	Tag  string    `json:"tag"`
	Text string    `json:"text"`
}

// Format renders the record as it is stored on disk, newline included.
func (r Record) Format() string {
	return fmt.Sprintf("%-*s|%s|\t%s\n", tagWidth, r.Tag, r.Time.Format(timeLayout), r.Text)
}

// Option configures a Logger.
type Option func(*Logger)

// WithFs sets the filesystem the logger writes to.
func WithFs(fs afero.Fs) Option {
	return func(l *Logger) {
		l.fs = fs
	}
}

// WithClock sets the clock used for record timestamps and daily file names.
func WithClock(clock clockwork.Clock) Option {
	return func(l *Logger) {
		l.clock = clock
	}
}

// Logger accumulates fragments into lines and appends one Record per line
// to the active log file. It is safe for concurrent use; the reader, the
// script player and the interactive surface all append through it.
type Logger struct {
	fs    afero.Fs
	clock clockwork.Clock
	file  afero.File

	dir       string
	fixedPath string
	openPath  string
	tag       string
	pending   string

	started       bool
	failed        bool
	headerPending bool

	mu syncutil.Mutex
}

// NewLogger returns a stopped logger writing daily files under dir.
func NewLogger(dir string, opts ...Option) *Logger {
	l := &Logger{
		fs:    afero.NewOsFs(),
		clock: clockwork.NewRealClock(),
		dir:   dir,
		tag:   DefaultTag,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the file the next Start would open.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentPath()
}

// Started reports whether a log file is open.
func (l *Logger) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// Pending returns the buffered text that has not seen a newline yet.
func (l *Logger) Pending() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// Tag returns the current source tag.
func (l *Logger) Tag() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tag
}

// SetTag sets the source tag stamped on subsequent records. An empty tag
// resets it to DefaultTag.
func (l *Logger) SetTag(tag string) {
	if tag == "" {
		tag = DefaultTag
	}
	l.mu.Lock()
	l.tag = tag
	l.mu.Unlock()
	log.Debug().Str("tag", tag).Msg("set logging tag")
}

// Start opens the log file for appending. Calling Start while started
// restarts the file. An unwritable path is logged and returned; appends are
// then dropped until a later Start succeeds.
func (l *Logger) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startLocked()
}

// Stop closes the log file. Buffered text without a newline stays in
// memory and is completed by later appends.
func (l *Logger) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

// SetPath pins the logger to one file instead of daily files.
func (l *Logger) SetPath(path string) error {
	if len(path) < minPathLength {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
	l.fixedPath = path
	l.failed = false
	log.Info().Str("path", path).Msg("set log path")
	return nil
}

// SetDir switches daily files to a new directory and drops any path pinned
// by SetPath.
func (l *Logger) SetDir(dir string) error {
	if len(dir) < minPathLength {
		return fmt.Errorf("%w: %q", ErrInvalidPath, dir)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
	l.dir = dir
	l.fixedPath = ""
	l.failed = false
	log.Info().Str("dir", dir).Msg("set log directory")
	return nil
}

// Append buffers text and writes one record for every newline it completes.
// Carriage returns are discarded.
func (l *Logger) Append(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		if l.failed {
			return
		}
		if err := l.startLocked(); err != nil {
			return
		}
	} else if l.fixedPath == "" && l.currentPath() != l.openPath {
		// new calendar day
		if err := l.startLocked(); err != nil {
			return
		}
	}

	l.pending += strings.ReplaceAll(text, "\r", "")
	for {
		i := strings.IndexByte(l.pending, '\n')
		if i < 0 {
			break
		}
		line := l.pending[:i]
		l.pending = l.pending[i+1:]
		l.writeRecordLocked(line)
	}
}

// Write implements io.Writer on top of Append.
func (l *Logger) Write(p []byte) (int, error) {
	l.Append(string(p))
	return len(p), nil
}

// Archive renames the active log to the first unused "<base>(<n>)<ext>"
// name and starts a fresh log holding ArchiveMessage. It returns the
// archive path. On failure the logger is left stopped and the original file
// is untouched.
func (l *Logger) Archive() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.openPath
	if path == "" {
		path = l.currentPath()
	}
	l.stopLocked()

	target, err := nextArchiveName(l.fs, path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrArchiveFailed, err)
	}

	if err := l.fs.Rename(path, target); err != nil {
		return "", fmt.Errorf("%w: %w", ErrArchiveFailed, err)
	}
	log.Info().Str("from", path).Str("to", target).Msg("archived log")

	if err := l.startLocked(); err == nil {
		l.writeRecordLocked(ArchiveMessage)
	}

	return target, nil
}

// Delete removes a log file. Deleting the active log stops the logger
// first.
func (l *Logger) Delete(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started && filepath.Clean(path) == filepath.Clean(l.openPath) {
		l.stopLocked()
	}

	if err := l.fs.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("log %s not found: %w", path, err)
		}
		return fmt.Errorf("%w: %s: %w", ErrLogInUse, path, err)
	}
	log.Info().Str("path", path).Msg("deleted log")
	return nil
}

func (l *Logger) currentPath() string {
	if l.fixedPath != "" {
		return l.fixedPath
	}
	return filepath.Join(l.dir, "log-"+l.clock.Now().Format(dateLayout)+".txt")
}

func (l *Logger) startLocked() error {
	if l.started {
		l.stopLocked()
	}

	path := l.currentPath()
	if dir := filepath.Dir(path); dir != "" {
		if err := l.fs.MkdirAll(dir, 0o755); err != nil {
			l.failed = true
			log.Error().Err(err).Str("path", path).Msg("failed to create log directory")
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	f, err := l.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.failed = true
		log.Error().Err(err).Str("path", path).Msg("failed to open log file")
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	l.file = f
	l.openPath = path
	l.started = true
	l.failed = false
	l.headerPending = true
	log.Debug().Str("path", path).Msg("starting logger")
	return nil
}

func (l *Logger) stopLocked() {
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			log.Warn().Err(err).Str("path", l.openPath).Msg("failed to close log file")
		}
		log.Debug().Str("path", l.openPath).Msg("stopping logger")
	}
	l.file = nil
	l.openPath = ""
	l.started = false
}

func (l *Logger) writeRecordLocked(text string) {
	if l.file == nil {
		return
	}
	now := l.clock.Now()
	if l.headerPending {
		l.headerPending = false
		header := fmt.Sprintf("%s log opened %s by %s, format <tag>|HH:MM:SS.mmm|<tab><text>\n",
			headerPrefix, now.Format(dateLayout+" "+timeLayout), l.tag)
		if _, err := l.file.WriteString(header); err != nil {
			log.Warn().Err(err).Msg("failed to write log header")
		}
	}
	rec := Record{Time: now, Tag: l.tag, Text: text}
	if _, err := l.file.WriteString(rec.Format()); err != nil {
		log.Warn().Err(err).Str("path", l.openPath).Msg("failed to write log record")
	}
}

// nextArchiveName tries "<base>(1)<ext>", "<base>(2)<ext>", ... and returns
// the first name that does not exist.
func nextArchiveName(fs afero.Fs, path string) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s(%d)%s", base, n, ext)
		exists, err := afero.Exists(fs, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		log.Debug().Str("name", candidate).Msg("archive name already exists")
	}
}
