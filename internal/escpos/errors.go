package escpos

import "errors"

var (
	ErrMalformedText    = errors.New("escpos: decoded text is not valid utf-8")
	ErrShortPath        = errors.New("escpos: command path needs a lead byte and at least one command byte")
	ErrPathConflict     = errors.New("escpos: command path conflicts with an existing entry")
	ErrInvalidArity     = errors.New("escpos: negative command arity")
	ErrInvalidHandler   = errors.New("escpos: handler requires a name and an action")
	ErrInvalidArgument  = errors.New("escpos: invalid command argument")
	ErrHandlerPanic     = errors.New("escpos: command action panicked")
	ErrArgumentMismatch = errors.New("escpos: argument count does not match arity")
)
