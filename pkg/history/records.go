package history

import (
	"bufio"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const headerPrefix = "#"

// LogFile describes a log on disk.
type LogFile struct {
	Path     string
	Size     int64
	Modified time.Time
}

// ParseRecord parses one stored line. Lines that do not follow the record
// layout come back as a Record holding only Text.
func ParseRecord(line string) Record {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return Record{Text: line}
	}
	ts, err := time.Parse(timeLayout, parts[1])
	if err != nil {
		return Record{Text: line}
	}
	return Record{
		Time: ts,
		Tag:  strings.TrimRight(parts[0], " "),
		Text: strings.TrimPrefix(parts[2], "\t"),
	}
}

// ReadRecords loads every record in a log file, skipping header lines.
func ReadRecords(fs afero.Fs, path string) ([]Record, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, headerPrefix) {
			continue
		}
		records = append(records, ParseRecord(line))
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to read log %s: %w", path, err)
	}
	return records, nil
}

// ListLogs returns the .txt files in dir, newest first.
func ListLogs(fs afero.Fs, dir string) ([]LogFile, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory %s: %w", dir, err)
	}

	logs := make([]LogFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		logs = append(logs, LogFile{
			Path:     filepath.Join(dir, e.Name()),
			Size:     e.Size(),
			Modified: e.ModTime(),
		})
	}
	slices.SortFunc(logs, func(a, b LogFile) int {
		return b.Modified.Compare(a.Modified)
	})
	return logs, nil
}
