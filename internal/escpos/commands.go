package escpos

import (
	"bytes"
	"fmt"
)

// Lead bytes of the recognized command namespace.
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
)

const lineFeed byte = '\n'

// DefaultCommands is the recognized ESC/POS subset. Extend a copy of it and
// pass it to NewTree to recognize more commands.
func DefaultCommands() []Command {
	return []Command{
		{Path: []byte{ESC, '!'}, Handler: Handler{Name: "select_print_mode", Arity: 1, Action: selectPrintMode}},
		{Path: []byte{ESC, '%'}, Handler: Handler{Name: "select_user_charset", Arity: 1, Action: selectUserCharset}},
		{Path: []byte{ESC, '-'}, Handler: Handler{Name: "set_underline", Arity: 1, Action: setUnderline}},
		{Path: []byte{ESC, 'M'}, Handler: Handler{Name: "set_font", Arity: 1, Action: setFont}},
		{Path: []byte{ESC, '@'}, Handler: Handler{Name: "initialize_printer", Arity: 0, Action: initializePrinter}},
		{Path: []byte{ESC, 'E'}, Handler: Handler{Name: "set_emphasis", Arity: 1, Action: setEmphasis}},
		{Path: []byte{ESC, 'J'}, Handler: Handler{Name: "feed_forward_units", Arity: 1, Action: feedForward}},
		{Path: []byte{ESC, 'V'}, Handler: Handler{Name: "cut", Arity: 1, Action: cut}},
		{Path: []byte{ESC, 'a'}, Handler: Handler{Name: "select_justification", Arity: 1, Action: selectJustification}},
		{Path: []byte{ESC, 'd'}, Handler: Handler{Name: "feed_forward_lines", Arity: 1, Action: feedForward}},
		{Path: []byte{ESC, 'p'}, Handler: Handler{Name: "pulse", Arity: 3, Action: pulse}},
		{Path: []byte{ESC, '{'}, Handler: Handler{Name: "upside_down", Arity: 1, Action: upsideDown}},
		{Path: []byte{GS, '!'}, Handler: Handler{Name: "set_character_size", Arity: 1, Action: setCharacterSize}},
		{Path: []byte{GS, '(', 'L'}, Handler: Handler{Name: "graphics_data", Arity: 4, Action: graphicsData}},
		{Path: []byte{GS, 'L'}, Handler: Handler{Name: "set_left_margin", Arity: 2, Action: setLeftMargin}},
		{Path: []byte{GS, 'V'}, Handler: Handler{Name: "cut_paper", Arity: 1, Action: cut}},
		{Path: []byte{GS, 'W'}, Handler: Handler{Name: "set_print_area_width", Arity: 2, Action: setPrintAreaWidth}},
		{Path: []byte{GS, 'h'}, Handler: Handler{Name: "set_barcode_height", Arity: 1, Action: setBarcodeHeight}},
	}
}

var defaultTree = mustTree(DefaultCommands())

// DefaultTree returns the shared tree built from DefaultCommands.
func DefaultTree() *Tree {
	return defaultTree
}

func littleEndian16(lo, hi byte) int {
	return int(lo) + int(hi)*256
}

func selectPrintMode(fx *Effects, args []byte) error {
	mode := args[0]
	s := fx.Settings()
	s.Font = mode & 0x01
	s.Emphasized = mode&0x08 != 0
	s.DoubleHeight = mode&0x10 != 0
	s.DoubleWidth = mode&0x20 != 0
	if mode&0x80 != 0 {
		s.Underline = UnderlineSingle
	} else {
		s.Underline = UnderlineNone
	}
	fx.Logger().Debug().
		Uint8("font", s.Font).
		Bool("emphasized", s.Emphasized).
		Bool("double_height", s.DoubleHeight).
		Bool("double_width", s.DoubleWidth).
		Msg("escpos: print mode")
	return nil
}

func selectUserCharset(fx *Effects, args []byte) error {
	fx.Settings().UserCharset = args[0]&0x01 != 0
	fx.Logger().Debug().Bool("user_charset", fx.Settings().UserCharset).Msg("escpos: user-defined charset")
	return nil
}

func setUnderline(fx *Effects, args []byte) error {
	s := fx.Settings()
	switch args[0] {
	case 1, '1':
		s.Underline = UnderlineSingle
	case 2, '2':
		s.Underline = UnderlineHeavy
	default:
		s.Underline = UnderlineNone
	}
	fx.Logger().Debug().Int("underline", int(s.Underline)).Msg("escpos: underline")
	return nil
}

func setFont(fx *Effects, args []byte) error {
	fx.Settings().Font = args[0]
	return nil
}

func initializePrinter(fx *Effects, _ []byte) error {
	*fx.Settings() = DefaultSettings()
	fx.Logger().Debug().Msg("escpos: initialize printer")
	return nil
}

func setEmphasis(fx *Effects, args []byte) error {
	fx.Settings().Emphasized = args[0]&0x01 != 0
	fx.Logger().Debug().Bool("emphasized", fx.Settings().Emphasized).Msg("escpos: emphasis")
	return nil
}

// Feed units are treated as whole lines; the decoded text has no vertical
// resolution finer than a line.
func feedForward(fx *Effects, args []byte) error {
	n := int(args[0])
	fx.Logger().Debug().Int("lines", n).Msg("escpos: feed forward")
	fx.Emit(bytes.Repeat([]byte{lineFeed}, n))
	return nil
}

func cut(fx *Effects, args []byte) error {
	fx.Stats().Cuts++
	fx.Logger().Debug().Uint8("mode", args[0]).Msg("escpos: cut")
	return nil
}

func selectJustification(fx *Effects, args []byte) error {
	var j Justification
	switch args[0] {
	case 0, '0':
		j = JustifyLeft
	case 1, '1':
		j = JustifyCenter
	case 2, '2':
		j = JustifyRight
	default:
		return fmt.Errorf("%w: justification %d", ErrInvalidArgument, args[0])
	}
	fx.Settings().Justification = j
	fx.Logger().Debug().Stringer("justification", j).Msg("escpos: justification")
	return nil
}

func pulse(fx *Effects, args []byte) error {
	fx.Stats().Pulses++
	fx.Logger().Debug().
		Uint8("pin", args[0]).
		Uint8("on", args[1]).
		Uint8("off", args[2]).
		Msg("escpos: pulse")
	return nil
}

func upsideDown(fx *Effects, args []byte) error {
	fx.Settings().UpsideDown = args[0]&0x01 != 0
	return nil
}

func setCharacterSize(fx *Effects, args []byte) error {
	s := fx.Settings()
	s.CharWidth = int((args[0]&0x70)>>4) + 1
	s.CharHeight = int(args[0]&0x07) + 1
	fx.Logger().Debug().Int("width", s.CharWidth).Int("height", s.CharHeight).Msg("escpos: character size")
	return nil
}

// GS ( L is consumed up to its function byte only. The parameter block that
// follows lands in the data buffer and is dropped by the printable filter.
func graphicsData(fx *Effects, args []byte) error {
	fx.Stats().GraphicsBlocks++
	fx.Logger().Debug().
		Int("length", littleEndian16(args[0], args[1])).
		Uint8("m", args[2]).
		Uint8("fn", args[3]).
		Msg("escpos: graphics data")
	return nil
}

func setLeftMargin(fx *Effects, args []byte) error {
	fx.Settings().LeftMargin = littleEndian16(args[0], args[1])
	return nil
}

func setPrintAreaWidth(fx *Effects, args []byte) error {
	fx.Settings().PrintAreaWidth = littleEndian16(args[0], args[1])
	return nil
}

func setBarcodeHeight(fx *Effects, args []byte) error {
	fx.Settings().BarcodeHeight = int(args[0])
	return nil
}
