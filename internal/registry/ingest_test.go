package registry

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/file-encryptor/internal/fault"
)

type recordingObserver struct {
	mu      sync.Mutex
	records []FileRecord
	paths   []string
}

func (o *recordingObserver) Stored(_ context.Context, record FileRecord, localPath string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
	o.paths = append(o.paths, localPath)
}

func newTestIngestor(t *testing.T, observers ...Observer) (*Ingestor, *Registry, string) {
	t.Helper()
	reg, base := newTestRegistry(t)
	in, err := NewIngestor(reg, "uploads", 1024, testLogger(), observers...)
	require.NoError(t, err)
	return in, reg, base
}

func TestNewIngestor_Validation(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := NewIngestor(reg, "missing", 10, testLogger())
	assert.Error(t, err)

	_, err = NewIngestor(reg, "test", 10, testLogger())
	assert.Error(t, err)

	_, err = NewIngestor(reg, "uploads", 0, testLogger())
	assert.Error(t, err)
}

func TestIngest_StoresAndLists(t *testing.T) {
	obs := &recordingObserver{}
	in, reg, base := newTestIngestor(t, obs)

	rec, err := in.Ingest(context.Background(), "my report.txt", strings.NewReader("content"))
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(rec.Name, "_my_report.txt"), rec.Name)
	assert.Equal(t, "uploads/"+rec.Name, rec.Path)
	assert.Equal(t, int64(7), rec.Size)
	assert.Equal(t, "txt", rec.Type)

	data, err := os.ReadFile(filepath.Join(base, "uploads", rec.Name))
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	assert.Contains(t, paths(reg.List(context.Background())), rec.Path)

	require.Len(t, obs.records, 1)
	assert.Equal(t, rec, obs.records[0])
	assert.Equal(t, filepath.Join(base, "uploads", rec.Name), obs.paths[0])
}

func TestIngest_SameNameTwiceGivesDistinctPaths(t *testing.T) {
	in, reg, _ := newTestIngestor(t)
	frozen := time.UnixMilli(1700000000000)
	in.now = func() time.Time { return frozen }

	first, err := in.Ingest(context.Background(), "x.txt", strings.NewReader("one"))
	require.NoError(t, err)
	second, err := in.Ingest(context.Background(), "x.txt", strings.NewReader("two"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	assert.Equal(t, "1700000000000_x.txt", first.Name)
	assert.Equal(t, "1700000000001_x.txt", second.Name)

	listed := paths(reg.List(context.Background()))
	assert.Contains(t, listed, first.Path)
	assert.Contains(t, listed, second.Path)
}

func TestIngest_SkipsNamesLeftByEarlierRuns(t *testing.T) {
	in, _, base := newTestIngestor(t)
	frozen := time.UnixMilli(42)
	in.now = func() time.Time { return frozen }

	writeFile(t, filepath.Join(base, "uploads", "42_a.bin"), []byte("old"))

	rec, err := in.Ingest(context.Background(), "a.bin", strings.NewReader("new"))
	require.NoError(t, err)
	assert.Equal(t, "43_a.bin", rec.Name)

	old, err := os.ReadFile(filepath.Join(base, "uploads", "42_a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
}

func TestIngest_ConcurrentUploadsNeverCollide(t *testing.T) {
	in, reg, _ := newTestIngestor(t)

	var wg sync.WaitGroup
	results := make(chan FileRecord, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := in.Ingest(context.Background(), "same.txt", strings.NewReader("x"))
			if assert.NoError(t, err) {
				results <- rec
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for rec := range results {
		assert.False(t, seen[rec.Path], "duplicate path %s", rec.Path)
		seen[rec.Path] = true
	}
	assert.Len(t, seen, 20)
	assert.Len(t, reg.List(context.Background()), 20)
}

func TestIngest_TooLargeLeavesNothingBehind(t *testing.T) {
	obs := &recordingObserver{}
	in, reg, base := newTestIngestor(t, obs)

	_, err := in.Ingest(context.Background(), "big.bin", bytes.NewReader(make([]byte, 1025)))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.PayloadTooLarge))

	entries, err := os.ReadDir(filepath.Join(base, "uploads"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, reg.List(context.Background()))
	assert.Empty(t, obs.records)
}

func TestIngest_ExactlyAtLimit(t *testing.T) {
	in, _, _ := newTestIngestor(t)

	rec, err := in.Ingest(context.Background(), "full.bin", bytes.NewReader(make([]byte, 1024)))
	require.NoError(t, err)
	assert.Equal(t, int64(1024), rec.Size)
}

type failingReader struct{ n int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n > 0 {
		f.n--
		p[0] = 'x'
		return 1, nil
	}
	return 0, io.ErrUnexpectedEOF
}

func TestIngest_ReadFailureRemovesPartial(t *testing.T) {
	in, _, base := newTestIngestor(t)

	_, err := in.Ingest(context.Background(), "broken.txt", &failingReader{n: 3})
	require.Error(t, err)
	assert.Equal(t, fault.Internal, fault.KindOf(err))

	entries, err := os.ReadDir(filepath.Join(base, "uploads"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIngest_CancelledContext(t *testing.T) {
	in, _, base := newTestIngestor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := in.Ingest(ctx, "a.txt", strings.NewReader("data"))
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(base, "uploads"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":        "report.pdf",
		"my file (1).txt":   "my_file__1_.txt",
		"../../etc/passwd":  ".._.._etc_passwd",
		"résumé.doc":        "r_sum_.doc",
		"":                  "file",
		"a-b_c.TXT":         "a-b_c.TXT",
		`C:\Users\me\x.png`: "C__Users_me_x.png",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), in)
	}
}
