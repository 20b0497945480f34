package escpos

import (
	"bytes"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the decoder mode. Exactly one is active at any time.
type State int

const (
	AwaitingData State = iota
	CollectingCommand
	CollectingArguments
)

func (s State) String() string {
	switch s {
	case CollectingCommand:
		return "collecting_command"
	case CollectingArguments:
		return "collecting_arguments"
	default:
		return "awaiting_data"
	}
}

// Effects is the surface a command action may act on.
type Effects struct {
	d *Decoder
}

// Emit appends synthesized text to the output. p is copied.
func (fx *Effects) Emit(p []byte) {
	if len(p) == 0 {
		return
	}
	fx.d.out = append(fx.d.out, bytes.Clone(p))
}

// Settings returns the live printer settings for the action to update.
func (fx *Effects) Settings() *Settings {
	return &fx.d.settings
}

// Stats returns the live session counters.
func (fx *Effects) Stats() *Stats {
	return &fx.d.stats
}

// Logger returns the decoder logger.
func (fx *Effects) Logger() *zerolog.Logger {
	return &fx.d.log
}

// Result is a finalized session.
type Result struct {
	Text            string
	Errors          int
	HandlerFailures int
	Settings        Settings
	Stats           Stats
}

// Option configures a Decoder.
type Option func(d *Decoder)

// WithLogger routes decoder diagnostics to l.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Decoder) {
		d.log = l
	}
}

// WithTree replaces the default command namespace.
func WithTree(t *Tree) Option {
	return func(d *Decoder) {
		if t != nil {
			d.tree = t
		}
	}
}

// Decoder is a push-driven ESC/POS stream decoder. Output is independent of
// how the input stream is split across Feed calls.
type Decoder struct {
	tree *Tree
	log  zerolog.Logger
	fx   Effects

	state    State
	data     []byte
	cmd      []byte
	args     []byte
	handler  Handler
	expected int
	out      [][]byte

	errors   int
	failures int
	settings Settings
	stats    Stats
}

// NewDecoder returns a decoder in AwaitingData with empty buffers.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		tree: defaultTree,
		log:  log.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.fx = Effects{d: d}
	d.Reset()
	return d
}

// Feed consumes one chunk. Empty chunks are no-ops.
func (d *Decoder) Feed(p []byte) {
	for _, b := range p {
		d.step(b)
	}
}

// Write implements io.Writer so a decoder can sit behind io.Copy or
// io.MultiWriter. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.Feed(p)
	return len(p), nil
}

func (d *Decoder) step(b byte) {
	switch d.state {
	case AwaitingData:
		if !d.tree.IsLead(b) {
			d.data = append(d.data, b)
			return
		}
		d.flushData()
		d.cmd = append(d.cmd[:0], b)
		d.args = d.args[:0]
		d.expected = 0
		d.state = CollectingCommand
	case CollectingCommand:
		d.cmd = append(d.cmd, b)
		d.resolve()
	case CollectingArguments:
		d.args = append(d.args, b)
		if len(d.args) == d.expected {
			d.invoke(d.handler, d.args)
			d.endCommand()
		}
	}
}

func (d *Decoder) resolve() {
	res, h := d.tree.Resolve(d.cmd)
	switch res {
	case Prefix:
	case Resolved:
		d.args = d.args[:0]
		if h.Arity == 0 {
			d.invoke(h, nil)
			d.endCommand()
			return
		}
		d.handler = h
		d.expected = h.Arity
		d.state = CollectingArguments
	default:
		d.errors++
		d.log.Warn().
			Str("path", FormatPath(d.cmd)).
			Int("errors", d.errors).
			Msg("escpos: unresolved command path")
		d.endCommand()
	}
}

// invoke runs h. A failing action is demoted to a warning and counted as a
// handler failure, never as an unresolved path.
func (d *Decoder) invoke(h Handler, args []byte) {
	d.stats.Commands++
	d.log.Trace().Str("command", h.Name).Hex("args", args).Msg("escpos: invoke")
	if err := h.call(&d.fx, args); err != nil {
		d.failures++
		d.log.Warn().
			Err(err).
			Str("command", h.Name).
			Hex("args", args).
			Msg("escpos: command failed")
	}
}

func (d *Decoder) endCommand() {
	d.cmd = d.cmd[:0]
	d.args = d.args[:0]
	d.handler = Handler{}
	d.expected = 0
	d.state = AwaitingData
}

func (d *Decoder) flushData() {
	if len(d.data) == 0 {
		return
	}
	if Printable(d.data) {
		d.out = append(d.out, bytes.Clone(d.data))
	} else {
		d.log.Debug().Int("bytes", len(d.data)).Msg("escpos: dropped non-printable data")
	}
	d.data = d.data[:0]
}

// terminate flushes end-of-stream state. A command cut off by the end of the
// stream is discarded without counting an error.
func (d *Decoder) terminate() {
	switch d.state {
	case AwaitingData:
		d.flushData()
	case CollectingCommand:
		d.log.Debug().Str("path", FormatPath(d.cmd)).Msg("escpos: truncated command at end of stream")
	case CollectingArguments:
		d.log.Debug().
			Str("command", d.handler.Name).
			Int("have", len(d.args)).
			Int("want", d.expected).
			Msg("escpos: truncated arguments at end of stream")
	}
}

// Text finalizes the session and returns the decoded text. The decoder is
// reset afterwards, on success and on ErrMalformedText alike, so error counts
// must be read before calling Text. Finish does both.
func (d *Decoder) Text() (string, error) {
	d.terminate()
	joined := bytes.Join(d.out, nil)
	d.log.Debug().
		Int("errors", d.errors).
		Int("handler_failures", d.failures).
		Int("bytes", len(joined)).
		Msg("escpos: finalize")
	d.Reset()
	if !utf8.Valid(joined) {
		return "", ErrMalformedText
	}
	return string(joined), nil
}

// Finish snapshots the counters and settings, then finalizes with Text.
func (d *Decoder) Finish() (Result, error) {
	res := Result{
		Errors:          d.errors,
		HandlerFailures: d.failures,
		Settings:        d.settings,
		Stats:           d.stats,
	}
	text, err := d.Text()
	if err != nil {
		return res, err
	}
	res.Text = text
	return res, nil
}

// Errors returns the number of unresolved command paths since the last reset.
func (d *Decoder) Errors() int {
	return d.errors
}

// HandlerFailures returns the number of command actions that failed since the
// last reset. These are not included in Errors.
func (d *Decoder) HandlerFailures() int {
	return d.failures
}

// State returns the current decoder mode.
func (d *Decoder) State() State {
	return d.state
}

// Settings returns a copy of the tracked printer settings.
func (d *Decoder) Settings() Settings {
	return d.settings
}

// Stats returns a copy of the session counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Reset drops all buffered input, output and counters.
func (d *Decoder) Reset() {
	d.state = AwaitingData
	d.data = d.data[:0]
	d.cmd = d.cmd[:0]
	d.args = d.args[:0]
	d.handler = Handler{}
	d.expected = 0
	d.out = nil
	d.errors = 0
	d.failures = 0
	d.settings = DefaultSettings()
	d.stats = Stats{}
}
