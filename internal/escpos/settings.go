package escpos

// Justification is the horizontal alignment selected by ESC a.
type Justification int

const (
	JustifyLeft Justification = iota
	JustifyCenter
	JustifyRight
)

func (j Justification) String() string {
	switch j {
	case JustifyCenter:
		return "center"
	case JustifyRight:
		return "right"
	default:
		return "left"
	}
}

// Underline is the underline weight selected by ESC - or ESC !.
type Underline int

const (
	UnderlineNone Underline = iota
	UnderlineSingle
	UnderlineHeavy
)

// Settings is the printer mode state implied by the commands seen so far.
// It never influences decoded text.
type Settings struct {
	Font           byte
	Emphasized     bool
	DoubleHeight   bool
	DoubleWidth    bool
	Underline      Underline
	Justification  Justification
	UpsideDown     bool
	UserCharset    bool
	CharWidth      int
	CharHeight     int
	LeftMargin     int
	PrintAreaWidth int
	BarcodeHeight  int
}

// DefaultSettings returns the power-on printer modes.
func DefaultSettings() Settings {
	return Settings{
		CharWidth:  1,
		CharHeight: 1,
	}
}

// Stats counts job level events. ESC @ leaves them untouched.
type Stats struct {
	Commands       int
	Cuts           int
	Pulses         int
	GraphicsBlocks int
}
