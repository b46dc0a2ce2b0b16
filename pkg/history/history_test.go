package history

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var testStart = time.Date(2026, 10, 19, 14, 3, 7, 123_000_000, time.UTC)

const todayLog = "/logs/log-2026-10-19.txt"

func newTestLogger() (*Logger, afero.Fs, *clockwork.FakeClock) {
	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(testStart)
	return NewLogger("/logs", WithFs(fs), WithClock(clock)), fs, clock
}

func recordTexts(t *testing.T, fs afero.Fs, path string) []string {
	t.Helper()
	recs, err := ReadRecords(fs, path)
	require.NoError(t, err)
	texts := make([]string, 0, len(recs))
	for _, r := range recs {
		texts = append(texts, r.Text)
	}
	return texts
}

func TestAppend_FragmentsAcrossCalls(t *testing.T) {
	t.Parallel()
	l, fs, _ := newTestLogger()

	l.Append("AB")
	l.Append("C\nDE")
	l.Append("F\n")

	assert.Equal(t, []string{"ABC", "DEF"}, recordTexts(t, fs, todayLog))
	assert.Empty(t, l.Pending())
}

func TestAppend_NoNewlineNoRecord(t *testing.T) {
	t.Parallel()
	l, fs, _ := newTestLogger()

	l.Append("waiting for newline")

	assert.Empty(t, recordTexts(t, fs, todayLog))
	assert.Equal(t, "waiting for newline", l.Pending())

	l.Append(" done\nnext")
	assert.Equal(t, []string{"waiting for newline done"}, recordTexts(t, fs, todayLog))
	assert.Equal(t, "next", l.Pending())
}

func TestAppend_StripsCarriageReturns(t *testing.T) {
	t.Parallel()
	l, fs, _ := newTestLogger()

	l.Append("one\r\ntwo\r")
	l.Append("\n\r")

	assert.Equal(t, []string{"one", "two"}, recordTexts(t, fs, todayLog))
	assert.Empty(t, l.Pending())
}

func TestAppend_RecordLayout(t *testing.T) {
	t.Parallel()
	l, fs, _ := newTestLogger()
	l.SetTag("COM3")

	l.Append("hello\n")

	data, err := afero.ReadFile(fs, todayLog)
	require.NoError(t, err)
	lines := strings.SplitAfter(string(data), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "# log opened 2026-10-19 14:03:07.123 by COM3"))
	assert.Equal(t, "COM3   |14:03:07.123|\thello\n", lines[1])
}

func TestAppend_EmptyLineIsARecord(t *testing.T) {
	t.Parallel()
	l, fs, _ := newTestLogger()

	l.Append("\n")

	data, err := afero.ReadFile(fs, todayLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "NO_PORT|14:03:07.123|\t\n")
}

func TestStop_KeepsPendingFragment(t *testing.T) {
	t.Parallel()
	l, fs, _ := newTestLogger()

	l.Append("abc")
	l.Stop()
	assert.False(t, l.Started())
	l.Stop()

	l.Append("def\n")
	assert.True(t, l.Started())
	assert.Equal(t, []string{"abcdef"}, recordTexts(t, fs, todayLog))
}

func TestStart_Restarts(t *testing.T) {
	t.Parallel()
	l, _, _ := newTestLogger()

	require.NoError(t, l.Start())
	require.NoError(t, l.Start())
	assert.True(t, l.Started())
	assert.Equal(t, todayLog, l.Path())
}

func TestStart_UnwritablePath(t *testing.T) {
	t.Parallel()
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	l := NewLogger("/logs", WithFs(fs), WithClock(clockwork.NewFakeClockAt(testStart)))

	require.Error(t, l.Start())
	assert.False(t, l.Started())

	l.Append("dropped\n")
	l.Append("also dropped")
	assert.False(t, l.Started())
	assert.Empty(t, l.Pending())
}

func TestSetPath(t *testing.T) {
	t.Parallel()
	l, fs, _ := newTestLogger()

	require.ErrorIs(t, l.SetPath(""), ErrInvalidPath)
	require.ErrorIs(t, l.SetPath("a.txt"), ErrInvalidPath)

	l.Append("before\n")
	require.NoError(t, l.SetPath("/other/session.txt"))
	assert.False(t, l.Started())
	assert.Equal(t, "/other/session.txt", l.Path())

	l.Append("after\n")
	assert.Equal(t, []string{"before"}, recordTexts(t, fs, todayLog))
	assert.Equal(t, []string{"after"}, recordTexts(t, fs, "/other/session.txt"))
}

func TestSetDir(t *testing.T) {
	t.Parallel()
	l, _, _ := newTestLogger()

	require.ErrorIs(t, l.SetDir("/a"), ErrInvalidPath)
	require.NoError(t, l.SetPath("/pinned/file.txt"))
	require.NoError(t, l.SetDir("/var/seriallogs"))
	assert.Equal(t, "/var/seriallogs/log-2026-10-19.txt", l.Path())
}

func TestAppend_RotatesDaily(t *testing.T) {
	t.Parallel()
	l, fs, clock := newTestLogger()

	l.Append("monday\n")
	clock.Advance(24 * time.Hour)
	l.Append("tuesday\n")

	assert.Equal(t, []string{"monday"}, recordTexts(t, fs, todayLog))
	assert.Equal(t, []string{"tuesday"}, recordTexts(t, fs, "/logs/log-2026-10-20.txt"))
}

func TestArchive_PicksFirstUnusedIndex(t *testing.T) {
	t.Parallel()
	l, fs, _ := newTestLogger()
	require.NoError(t, afero.WriteFile(fs, "/logs/log-2026-10-19(1).txt", []byte("old\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/logs/log-2026-10-19(2).txt", []byte("old\n"), 0o644))

	l.Append("keep me\n")
	archived, err := l.Archive()
	require.NoError(t, err)

	assert.Equal(t, "/logs/log-2026-10-19(3).txt", archived)
	assert.Equal(t, []string{"keep me"}, recordTexts(t, fs, archived))
	assert.Equal(t, []string{ArchiveMessage}, recordTexts(t, fs, todayLog))
	assert.True(t, l.Started())

	old, err := afero.ReadFile(fs, "/logs/log-2026-10-19(1).txt")
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(old))
}

func TestArchive_KeepsPendingFragment(t *testing.T) {
	t.Parallel()
	l, fs, _ := newTestLogger()

	l.Append("done\nhalf")
	_, err := l.Archive()
	require.NoError(t, err)
	l.Append(" line\n")

	assert.Equal(t, []string{ArchiveMessage, "half line"}, recordTexts(t, fs, todayLog))
}

func TestArchive_FailureLeavesLoggerStopped(t *testing.T) {
	t.Parallel()
	l, fs, _ := newTestLogger()

	_, err := l.Archive()
	require.ErrorIs(t, err, ErrArchiveFailed)
	assert.False(t, l.Started())

	exists, err := afero.Exists(fs, "/logs/log-2026-10-19(1).txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	l, fs, _ := newTestLogger()

	l.Append("x\n")
	require.NoError(t, l.Delete(todayLog))
	assert.False(t, l.Started())

	exists, err := afero.Exists(fs, todayLog)
	require.NoError(t, err)
	assert.False(t, exists)

	err = l.Delete("/logs/missing.txt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLogInUse)
}

func TestDelete_LogInUse(t *testing.T) {
	t.Parallel()
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/logs/locked.txt", []byte("x\n"), 0o644))
	l := NewLogger("/logs", WithFs(afero.NewReadOnlyFs(base)))

	require.ErrorIs(t, l.Delete("/logs/locked.txt"), ErrLogInUse)
}

func TestAppend_ConcurrentWriters(t *testing.T) {
	t.Parallel()
	l, fs, _ := newTestLogger()

	const writers, lines = 8, 100
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range lines {
				l.Append(fmt.Sprintf("w%d-%d\n", w, i))
			}
		}()
	}
	wg.Wait()

	texts := recordTexts(t, fs, todayLog)
	require.Len(t, texts, writers*lines)
	seen := make(map[string]bool, len(texts))
	for _, txt := range texts {
		seen[txt] = true
	}
	assert.Len(t, seen, writers*lines, "every line must arrive intact exactly once")
}

func TestAppend_SplittingIsAssociative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		alphabet := rapid.SampledFrom([]rune{'a', 'b', ' ', '\n', '\r'})
		chunks := rapid.SliceOf(rapid.StringOf(alphabet)).Draw(t, "chunks")

		split, splitFs, _ := newTestLogger()
		whole, wholeFs, _ := newTestLogger()

		for _, c := range chunks {
			split.Append(c)
		}
		whole.Append(strings.Join(chunks, ""))

		got, _ := afero.ReadFile(splitFs, todayLog)
		want, _ := afero.ReadFile(wholeFs, todayLog)
		if string(got) != string(want) {
			t.Fatalf("split appends wrote %q, whole append wrote %q", got, want)
		}
		if split.Pending() != whole.Pending() {
			t.Fatalf("pending %q != %q", split.Pending(), whole.Pending())
		}
		if strings.Contains(split.Pending(), "\n") {
			t.Fatalf("pending fragment holds a newline: %q", split.Pending())
		}
	})
}
