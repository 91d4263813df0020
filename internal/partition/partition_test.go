package partition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagelift/pagelift/internal/extract"
)

func TestPlanStrides(t *testing.T) {
	t.Parallel()

	got := Plan(23, 5)
	want := [][2]int{{1, 5}, {6, 10}, {11, 15}, {16, 20}, {21, 23}}
	require.Equal(t, want, got)
}

func TestPlanCoversEveryPageExactlyOnce(t *testing.T) {
	t.Parallel()

	for totalPages := 1; totalPages <= 60; totalPages++ {
		for maxPages := 1; maxPages <= 10; maxPages++ {
			ranges := Plan(totalPages, maxPages)

			wantCount := (totalPages + maxPages - 1) / maxPages
			require.Len(t, ranges, wantCount, "total=%d max=%d", totalPages, maxPages)

			next := 1
			sum := 0
			for _, r := range ranges {
				require.Equal(t, next, r[0], "total=%d max=%d: gap or overlap", totalPages, maxPages)
				require.GreaterOrEqual(t, r[1], r[0])
				require.LessOrEqual(t, r[1]-r[0]+1, maxPages)
				sum += r[1] - r[0] + 1
				next = r[1] + 1
			}
			require.Equal(t, totalPages+1, next, "total=%d max=%d: last range must end at totalPages", totalPages, maxPages)
			require.Equal(t, totalPages, sum)
		}
	}
}

func TestPlanDegenerateInputs(t *testing.T) {
	t.Parallel()

	require.Nil(t, Plan(0, 5))
	require.Nil(t, Plan(10, 0))
	require.Nil(t, Plan(-3, 5))
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	var ce *extract.ConfigurationError

	_, err := New(Config{MaxPagesPerChunk: 0, ChunkDir: t.TempDir()}, zap.NewNop())
	require.ErrorAs(t, err, &ce)

	_, err = New(Config{MaxPagesPerChunk: 11, ChunkDir: t.TempDir()}, zap.NewNop())
	require.ErrorAs(t, err, &ce)

	_, err = New(Config{MaxPagesPerChunk: 5, ChunkDir: ""}, zap.NewNop())
	require.ErrorAs(t, err, &ce)
}

func TestSplitSingleChunkKeepsOriginal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "roll.pdf")
	writeTestPDF(t, src, 3)

	p, err := New(Config{MaxPagesPerChunk: 5, ChunkDir: filepath.Join(dir, "chunks")}, zap.NewNop())
	require.NoError(t, err)

	doc, err := p.Inspect(src)
	require.NoError(t, err)
	require.Equal(t, 3, doc.TotalPages)

	chunks, err := p.Split(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	chunk := chunks[0]
	require.Equal(t, SingleChunkID, chunk.ID)
	require.Equal(t, 1, chunk.StartPage)
	require.Equal(t, 3, chunk.EndPage)
	require.Equal(t, 0, chunk.SequenceIndex)
	require.Equal(t, "p1-3", chunk.PageLabel)
	require.FileExists(t, chunk.Path)
}

func TestSplitMultiChunk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "voter roll.pdf")
	writeTestPDF(t, src, 23)

	p, err := New(Config{MaxPagesPerChunk: 5, ChunkDir: filepath.Join(dir, "chunks")}, zap.NewNop())
	require.NoError(t, err)

	doc, err := p.Inspect(src)
	require.NoError(t, err)
	require.Equal(t, 23, doc.TotalPages)

	chunks, err := p.Split(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, chunks, 5)

	wantRanges := [][2]int{{1, 5}, {6, 10}, {11, 15}, {16, 20}, {21, 23}}
	wantLabels := []string{"p01-05", "p06-10", "p11-15", "p16-20", "p21-23"}
	seen := map[string]bool{}
	for i, chunk := range chunks {
		require.Equal(t, i, chunk.SequenceIndex)
		require.Equal(t, wantRanges[i][0], chunk.StartPage)
		require.Equal(t, wantRanges[i][1], chunk.EndPage)
		require.Equal(t, wantLabels[i], chunk.PageLabel)

		require.True(t, strings.HasPrefix(chunk.ID, "voter-roll-"), "id %s should carry the source base name", chunk.ID)
		suffix := strings.TrimPrefix(chunk.ID, "voter-roll-")
		require.Len(t, suffix, 12, "suffix should be 12 hex characters")
		require.False(t, seen[chunk.ID], "chunk ids must be unique")
		seen[chunk.ID] = true

		require.FileExists(t, chunk.Path)
		pages, err := api.PageCountFile(chunk.Path)
		require.NoError(t, err)
		require.Equal(t, chunk.EndPage-chunk.StartPage+1, pages)
	}
}

func TestSplitRejectsEmptyDocument(t *testing.T) {
	t.Parallel()

	p, err := New(Config{MaxPagesPerChunk: 5, ChunkDir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)

	_, err = p.Split(context.Background(), extract.Document{Path: "empty.pdf", TotalPages: 0})
	var pe *extract.PartitionError
	require.ErrorAs(t, err, &pe)
}

func TestInspectRejectsUnreadableDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pdf")
	require.NoError(t, os.WriteFile(garbage, []byte("not a pdf at all"), 0o600))

	p, err := New(Config{MaxPagesPerChunk: 5, ChunkDir: filepath.Join(dir, "chunks")}, zap.NewNop())
	require.NoError(t, err)

	var pe *extract.PartitionError
	_, err = p.Inspect(garbage)
	require.ErrorAs(t, err, &pe)

	_, err = p.Inspect(filepath.Join(dir, "missing.pdf"))
	require.ErrorAs(t, err, &pe)
}

func TestCleanupRemovesChunks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	chunkDir := filepath.Join(dir, "chunks")
	src := filepath.Join(dir, "roll.pdf")
	writeTestPDF(t, src, 2)

	p, err := New(Config{MaxPagesPerChunk: 5, ChunkDir: chunkDir}, zap.NewNop())
	require.NoError(t, err)

	doc, err := p.Inspect(src)
	require.NoError(t, err)
	_, err = p.Split(context.Background(), doc)
	require.NoError(t, err)

	require.NoError(t, p.Cleanup())
	_, err = os.Stat(chunkDir)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRandomSuffix(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 512; i++ {
		s, err := randomSuffix()
		require.NoError(t, err)
		require.Len(t, s, 12)
		require.False(t, seen[s], "suffixes should not repeat")
		seen[s] = true
	}
}

func TestBaseName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "voter-roll", baseName("/data/in/voter roll.pdf"))
	require.Equal(t, "a_b-c", baseName("a_b-c.PDF"))
	require.Equal(t, "r-sum-", baseName("résumé.pdf"))
	require.Equal(t, "document", baseName("/data/in/.pdf"))
}

// writeTestPDF generates a minimal valid PDF with the given page count.
func writeTestPDF(t *testing.T, path string, pages int) {
	t.Helper()

	var buf bytes.Buffer
	offsets := make([]int, 0, pages+2)

	buf.WriteString("%PDF-1.4\n")

	addObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	kids := make([]string, 0, pages)
	for i := 0; i < pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", i+3))
	}
	addObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	addObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		addObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>\nendobj\n", i+3))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}
