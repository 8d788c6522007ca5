package vocabfile

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-bpe-tokenizer/internal/bpe"
	"github.com/example/go-bpe-tokenizer/internal/testutil"
)

type recordingHandler struct {
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestReadMerges_StandardLayout(t *testing.T) {
	pairs, err := ReadMerges(strings.NewReader("#version: 0.2\nĠ t\nh e\n"), MergesOptions{})
	require.NoError(t, err)
	assert.Equal(t, []bpe.Pair{{Left: "Ġ", Right: "t"}, {Left: "h", Right: "e"}}, pairs)
}

func TestReadMerges_TrailerPolicies(t *testing.T) {
	noNewline := "#version: 0.2\na b\nc d"

	t.Run("keep warns and keeps final rule", func(t *testing.T) {
		h := &recordingHandler{}
		pairs, err := ReadMerges(strings.NewReader(noNewline), MergesOptions{Logger: slog.New(h)})
		require.NoError(t, err)
		assert.Len(t, pairs, 2)
		require.Len(t, h.records, 1)
		assert.Equal(t, slog.LevelWarn, h.records[0].Level)
	})

	t.Run("require rejects", func(t *testing.T) {
		_, err := ReadMerges(strings.NewReader(noNewline), MergesOptions{Trailer: TrailerRequire})
		require.ErrorIs(t, err, ErrMissingTrailer)
	})

	t.Run("drop loses final rule", func(t *testing.T) {
		pairs, err := ReadMerges(strings.NewReader(noNewline), MergesOptions{Trailer: TrailerDrop})
		require.NoError(t, err)
		assert.Equal(t, []bpe.Pair{{Left: "a", Right: "b"}}, pairs)
	})

	t.Run("all agree when newline present", func(t *testing.T) {
		for _, p := range []TrailerPolicy{TrailerKeep, TrailerRequire, TrailerDrop} {
			pairs, err := ReadMerges(strings.NewReader(noNewline+"\n"), MergesOptions{Trailer: p})
			require.NoError(t, err, "policy %s", p)
			assert.Len(t, pairs, 2, "policy %s", p)
		}
	})
}

func TestReadMerges_Header(t *testing.T) {
	pairs, err := ReadMerges(strings.NewReader("a b\n"), MergesOptions{})
	require.NoError(t, err)
	assert.Len(t, pairs, 1, "without a # header the first line is a rule")

	_, err = ReadMerges(strings.NewReader("a b\n"), MergesOptions{RequireHeader: true})
	require.ErrorIs(t, err, ErrMissingHeader)
}

func TestReadMerges_HashRuleIsNotHeader(t *testing.T) {
	pairs, err := ReadMerges(strings.NewReader("# #\na b\n"), MergesOptions{})
	require.NoError(t, err)
	assert.Equal(t, []bpe.Pair{{Left: "#", Right: "#"}, {Left: "a", Right: "b"}}, pairs)

	pairs, err = ReadMerges(strings.NewReader("#version: 0.2\n# #\n"), MergesOptions{})
	require.NoError(t, err)
	assert.Equal(t, []bpe.Pair{{Left: "#", Right: "#"}}, pairs)

	_, err = ReadMerges(strings.NewReader("# #\n"), MergesOptions{RequireHeader: true})
	require.ErrorIs(t, err, ErrMissingHeader)
}

func TestReadMerges_CommentHeaderLogged(t *testing.T) {
	h := &recordingHandler{}
	pairs, err := ReadMerges(strings.NewReader("# generated by hand\na b\n"),
		MergesOptions{Logger: slog.New(h)})
	require.NoError(t, err)
	assert.Len(t, pairs, 1)

	require.Len(t, h.records, 1)
	assert.Equal(t, slog.LevelDebug, h.records[0].Level)
}

func TestReadMerges_CRLFAndBlankLines(t *testing.T) {
	pairs, err := ReadMerges(strings.NewReader("#version: 0.2\r\na b\r\n\r\nc d\r\n"), MergesOptions{})
	require.NoError(t, err)
	assert.Equal(t, []bpe.Pair{{Left: "a", Right: "b"}, {Left: "c", Right: "d"}}, pairs)
}

func TestReadMerges_MalformedLine(t *testing.T) {
	_, err := ReadMerges(strings.NewReader("#version: 0.2\na b\nc d e\n"), MergesOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestParseTrailerPolicy(t *testing.T) {
	p, err := ParseTrailerPolicy("")
	require.NoError(t, err)
	assert.Equal(t, TrailerKeep, p)

	p, err = ParseTrailerPolicy("DROP")
	require.NoError(t, err)
	assert.Equal(t, TrailerDrop, p)

	_, err = ParseTrailerPolicy("sometimes")
	require.Error(t, err)
}

func TestReadVocab(t *testing.T) {
	v, err := ReadVocab(bytes.NewBufferString(`{"a":0,"b":1}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 0, "b": 1}, v)

	_, err = ReadVocab(bytes.NewBufferString(`null`))
	require.Error(t, err)

	_, err = ReadVocab(bytes.NewBufferString(`["a"]`))
	require.Error(t, err)
}

func TestLoad_Fixture(t *testing.T) {
	fx := testutil.Fixture()
	vocabPath, mergesPath := testutil.WriteFixture(t, fx)

	tables, err := Load(vocabPath, mergesPath, MergesOptions{Trailer: TrailerRequire, RequireHeader: true})
	require.NoError(t, err)
	assert.Equal(t, len(fx.Vocab), tables.Vocab.Size())
	assert.Equal(t, len(fx.Merges), tables.Ranks.Len())

	rank, ok := tables.Ranks.Rank("Ġt", "he")
	require.True(t, ok)
	assert.Equal(t, 2, rank)
}

func TestLoad_Gzip(t *testing.T) {
	fx := testutil.Fixture()
	vocabPath, mergesPath := testutil.WriteGzipFixture(t, fx)

	tables, err := Load(vocabPath, mergesPath, MergesOptions{})
	require.NoError(t, err)
	assert.Equal(t, len(fx.Vocab), tables.Vocab.Size())
	assert.Equal(t, len(fx.Merges), tables.Ranks.Len())
}

func TestLoad_Errors(t *testing.T) {
	vocabPath, mergesPath := testutil.WriteFixture(t, testutil.Fixture())

	_, err := Load("", mergesPath, MergesOptions{})
	require.ErrorIs(t, err, ErrEmptyPath)

	_, err = Load(vocabPath, "/nonexistent/merges.txt", MergesOptions{})
	require.Error(t, err)

	badGzip := testutil.WriteFile(t, "vocab.json.gz", []byte("not gzip"))
	_, err = LoadVocab(badGzip)
	require.Error(t, err)

	dup := testutil.WriteFile(t, "merges.txt", []byte("#version: 0.2\na b\na b\n"))
	_, err = LoadMerges(dup, MergesOptions{})
	require.ErrorIs(t, err, bpe.ErrDuplicatePair)
}
