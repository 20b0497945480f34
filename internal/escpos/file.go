package escpos

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// ParseFile feeds the whole content of path into d. It does not finalize.
func (d *Decoder) ParseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("escpos: open %s: %w", path, err)
	}
	defer f.Close()

	d.log.Debug().Str("path", path).Msg("escpos: parsing file")
	if _, err := io.Copy(d, bufio.NewReader(f)); err != nil {
		return fmt.Errorf("escpos: read %s: %w", path, err)
	}
	return nil
}

// DecodeFile decodes path in a fresh session and finalizes it.
func DecodeFile(path string, opts ...Option) (Result, error) {
	d := NewDecoder(opts...)
	if err := d.ParseFile(path); err != nil {
		return Result{}, err
	}
	return d.Finish()
}
