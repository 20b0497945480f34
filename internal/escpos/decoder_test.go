package escpos

import (
	"bytes"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/receiptctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(parts ...any) []byte {
	var out []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			out = append(out, v...)
		case byte:
			out = append(out, v)
		case rune:
			out = append(out, byte(v))
		case int:
			out = append(out, byte(v))
		case []byte:
			out = append(out, v...)
		}
	}
	return out
}

func decode(t *testing.T, input []byte) Result {
	t.Helper()
	d := NewDecoder()
	d.Feed(input)
	res, err := d.Finish()
	require.NoError(t, err)
	return res
}

func TestEmptyInput(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder()
	d.Feed(nil)
	d.Feed([]byte{})
	assert.Equal(t, 0, d.Errors())
	text, err := d.Text()
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestLiteralPassthrough(t *testing.T) {
	testlog.Start(t)
	res := decode(t, []byte("Hello"))
	assert.Equal(t, "Hello", res.Text)
	assert.Zero(t, res.Errors)
}

func TestZeroArityCommandIsConsumed(t *testing.T) {
	testlog.Start(t)
	res := decode(t, seq("A", ESC, '@', "B"))
	assert.Equal(t, "AB", res.Text)
	assert.Zero(t, res.Errors)
	assert.Zero(t, res.HandlerFailures)
	assert.Equal(t, 1, res.Stats.Commands)
}

func TestFeedForwardAppendsLineFeeds(t *testing.T) {
	testlog.Start(t)
	assert.Equal(t, "\n\n\n", decode(t, seq(ESC, 'd', 3)).Text)
	assert.Equal(t, "x\n\n\ny", decode(t, seq("x", ESC, 'd', 3, "y")).Text)
	assert.Equal(t, "\n\n", decode(t, seq(ESC, 'J', 2)).Text)
	assert.Equal(t, "ab", decode(t, seq("a", ESC, 'd', 0, "b")).Text)
}

func TestLeadByteAsArgumentIsNotACommand(t *testing.T) {
	testlog.Start(t)
	res := decode(t, seq(ESC, 'd', ESC, "z"))
	assert.Equal(t, strings.Repeat("\n", int(ESC))+"z", res.Text)
	assert.Zero(t, res.Errors)
}

func TestUnresolvedPathRecovers(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder()
	d.Feed(seq("A", ESC, 'B'))
	assert.Equal(t, 1, d.Errors())
	assert.Equal(t, AwaitingData, d.State())
	d.Feed([]byte("CD"))
	text, err := d.Text()
	require.NoError(t, err)
	assert.Equal(t, "ACD", text)
}

func TestUnresolvedPathsAreCountedOnce(t *testing.T) {
	testlog.Start(t)
	res := decode(t, []byte("Banana\x1b\x42Hello\x1b\x23 Wurl\x01\x02d"))
	assert.Equal(t, "BananaHello", res.Text)
	assert.Equal(t, 2, res.Errors)

	res = decode(t, seq(ESC, ESC, "X"))
	assert.Equal(t, "X", res.Text)
	assert.Equal(t, 1, res.Errors)

	res = decode(t, seq(GS, '(', 'X', "after"))
	assert.Equal(t, "after", res.Text)
	assert.Equal(t, 1, res.Errors)
}

func TestThreeLevelCommand(t *testing.T) {
	testlog.Start(t)
	res := decode(t, seq("head", GS, '(', 'L', 2, 0, 48, 69, "tail"))
	assert.Equal(t, "headtail", res.Text)
	assert.Zero(t, res.Errors)
	assert.Equal(t, 1, res.Stats.GraphicsBlocks)
}

func TestHandlerFailureIsNotAnError(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder()
	d.Feed(seq("pre", ESC, 'a', 7, "post"))
	assert.Equal(t, 0, d.Errors())
	assert.Equal(t, 1, d.HandlerFailures())
	assert.Equal(t, AwaitingData, d.State())
	assert.Equal(t, JustifyLeft, d.Settings().Justification)

	d.Feed(seq(ESC, 'a', '1'))
	assert.Equal(t, 1, d.HandlerFailures())
	assert.Equal(t, JustifyCenter, d.Settings().Justification)

	text, err := d.Text()
	require.NoError(t, err)
	assert.Equal(t, "prepost", text)
}

func TestNonPrintableRunIsDropped(t *testing.T) {
	testlog.Start(t)
	res := decode(t, seq("ab\x01cd", ESC, '@', "ef"))
	assert.Equal(t, "ef", res.Text)
	assert.Zero(t, res.Errors)

	res = decode(t, seq("ok", ESC, '@', 0x80, 0x81))
	assert.Equal(t, "ok", res.Text)
	assert.Zero(t, res.Errors)
}

func TestTruncatedCommandAtEndOfStream(t *testing.T) {
	testlog.Start(t)
	for _, input := range [][]byte{
		seq("AB", ESC),
		seq("AB", GS, '('),
		seq("AB", ESC, 'p', 1),
	} {
		res := decode(t, input)
		assert.Equal(t, "AB", res.Text)
		assert.Zero(t, res.Errors)
	}
}

func TestReuseAfterFinalize(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder()
	d.Feed(seq("first", ESC, 'B', ESC, '!', 0x08, "x\x00"))
	require.Equal(t, 1, d.Errors())
	_, err := d.Text()
	require.NoError(t, err)

	assert.Equal(t, 0, d.Errors())
	assert.Equal(t, 0, d.HandlerFailures())
	assert.Equal(t, AwaitingData, d.State())
	assert.Equal(t, DefaultSettings(), d.Settings())

	d.Feed([]byte("second"))
	text, err := d.Text()
	require.NoError(t, err)
	assert.Equal(t, "second", text)
	assert.Equal(t, 0, d.Errors())
}

func TestSettingsTracking(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder()
	d.Feed(seq(
		ESC, '!', 0x39,
		GS, '!', 0x11,
		GS, 'L', 0x10, 0x01,
		GS, 'W', 0x00, 0x02,
		GS, 'h', 80,
		ESC, '-', 2,
		ESC, '{', 1,
		ESC, '%', 1,
		ESC, 'V', 66,
		GS, 'V', 1,
		ESC, 'p', 0, 25, 250,
	))
	s := d.Settings()
	assert.Equal(t, byte(1), s.Font)
	assert.True(t, s.Emphasized)
	assert.True(t, s.DoubleHeight)
	assert.True(t, s.DoubleWidth)
	assert.Equal(t, 2, s.CharWidth)
	assert.Equal(t, 2, s.CharHeight)
	assert.Equal(t, 272, s.LeftMargin)
	assert.Equal(t, 512, s.PrintAreaWidth)
	assert.Equal(t, 80, s.BarcodeHeight)
	assert.Equal(t, UnderlineHeavy, s.Underline)
	assert.True(t, s.UpsideDown)
	assert.True(t, s.UserCharset)
	assert.Equal(t, 2, d.Stats().Cuts)
	assert.Equal(t, 1, d.Stats().Pulses)

	d.Feed(seq(ESC, '@'))
	assert.Equal(t, DefaultSettings(), d.Settings())
	assert.Equal(t, 2, d.Stats().Cuts)

	d.Feed(seq(ESC, 'E', 1))
	res, err := d.Finish()
	require.NoError(t, err)
	assert.True(t, res.Settings.Emphasized)
	assert.Equal(t, 13, res.Stats.Commands)
	assert.False(t, d.Settings().Emphasized)
}

func TestCustomCommandExtendsTree(t *testing.T) {
	testlog.Start(t)
	cmds := append(DefaultCommands(), Command{
		Path: []byte{0x1C, 'p'},
		Handler: Handler{Name: "print_nv_image", Arity: 2, Action: func(fx *Effects, args []byte) error {
			fx.Emit([]byte("[logo]"))
			return nil
		}},
	})
	tree, err := NewTree(cmds)
	require.NoError(t, err)

	d := NewDecoder(WithTree(tree))
	d.Feed(seq("a", 0x1C, 'p', 1, 0, "b", ESC, 'd', 1))
	res, err := d.Finish()
	require.NoError(t, err)
	assert.Equal(t, "a[logo]b\n", res.Text)
	assert.Zero(t, res.Errors)

	assert.Equal(t, "", decode(t, seq("a", 0x1C, 'p', 1, 0, "b")).Text)
}

func TestPanickingActionIsAHandlerFailure(t *testing.T) {
	testlog.Start(t)
	tree, err := NewTree([]Command{{
		Path:    []byte{ESC, 'x'},
		Handler: Handler{Name: "explode", Arity: 1, Action: func(*Effects, []byte) error { panic("boom") }},
	}})
	require.NoError(t, err)

	d := NewDecoder(WithTree(tree))
	d.Feed(seq("a", ESC, 'x', 9, "b"))
	res, err := d.Finish()
	require.NoError(t, err)
	assert.Equal(t, "ab", res.Text)
	assert.Equal(t, 1, res.HandlerFailures)
	assert.Zero(t, res.Errors)
}

func TestMalformedTextIsFatalAndResets(t *testing.T) {
	testlog.Start(t)
	tree, err := NewTree([]Command{{
		Path: []byte{ESC, 'x'},
		Handler: Handler{Name: "raw", Arity: 0, Action: func(fx *Effects, _ []byte) error {
			fx.Emit([]byte{0xFF, 0xFE})
			return nil
		}},
	}})
	require.NoError(t, err)

	d := NewDecoder(WithTree(tree))
	d.Feed(seq("a", ESC, 'x', ESC, 'q'))
	_, err = d.Finish()
	require.ErrorIs(t, err, ErrMalformedText)
	assert.Equal(t, 0, d.Errors())
	assert.Equal(t, AwaitingData, d.State())

	d.Feed([]byte("fine"))
	text, err := d.Text()
	require.NoError(t, err)
	assert.Equal(t, "fine", text)
}

func TestDecoderIsAWriter(t *testing.T) {
	testlog.Start(t)
	input := seq("Total", ESC, 'd', 1, "Thanks")
	d := NewDecoder()
	n, err := io.Copy(d, bytes.NewReader(input))
	require.NoError(t, err)
	assert.EqualValues(t, len(input), n)
	text, err := d.Text()
	require.NoError(t, err)
	assert.Equal(t, "Total\nThanks", text)
}

func TestDecodeFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "receipt.bin")
	require.NoError(t, os.WriteFile(path, seq(ESC, '@', "Receipt", ESC, 'd', 2, ESC, 'B', "end"), 0o644))

	res, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Receipt\n\nend", res.Text)
	assert.Equal(t, 1, res.Errors)

	_, err = DecodeFile(filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
}

func chunkCorpus() [][]byte {
	corpus := [][]byte{
		nil,
		[]byte("Hello"),
		seq("A", ESC, '@', "B"),
		seq(ESC, 'd', 3),
		[]byte("Banana\x1b\x42Hello\x1b\x23 Wurl\x01\x02d"),
		seq("head", GS, '(', 'L', 2, 0, 48, 69, 0xFF, 0x00, "tail"),
		seq("x", ESC, 'a', 9, "y", ESC, 'a', 2, "z", ESC),
		seq(GS, 'L', 1, ESC, 'p', 1, 2, 3, "q", GS, '('),
	}
	rng := rand.New(rand.NewSource(42))
	alphabet := []byte{ESC, GS, '(', 'L', '@', 'd', 'a', 'p', '!', 'B', 'x', 0x00, 0x01, 3, '\n', ' '}
	for i := 0; i < 64; i++ {
		buf := make([]byte, 1+rng.Intn(96))
		for j := range buf {
			if rng.Intn(3) == 0 {
				buf[j] = byte(rng.Intn(256))
			} else {
				buf[j] = alphabet[rng.Intn(len(alphabet))]
			}
		}
		corpus = append(corpus, buf)
	}
	return corpus
}

func TestChunkBoundaryIndependence(t *testing.T) {
	testlog.Start(t)
	rng := rand.New(rand.NewSource(7))
	for i, input := range chunkCorpus() {
		whole := NewDecoder()
		whole.Feed(input)
		want, wantErr := whole.Finish()

		single := NewDecoder()
		for j := range input {
			single.Feed(input[j : j+1])
		}
		got, gotErr := single.Finish()
		require.Equal(t, wantErr, gotErr, "input %d", i)
		require.Equal(t, want, got, "input %d one byte at a time", i)

		random := NewDecoder()
		for rest := input; len(rest) > 0; {
			n := 1 + rng.Intn(len(rest))
			random.Feed(rest[:n])
			random.Feed(nil)
			rest = rest[n:]
		}
		got, gotErr = random.Finish()
		require.Equal(t, wantErr, gotErr, "input %d", i)
		require.Equal(t, want, got, "input %d random chunks", i)
	}
}
