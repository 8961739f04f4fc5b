package warehouse

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrTableNotFound     = errors.New("table does not exist")
	ErrInvalidInsertMode = errors.New("invalid insert mode")
	ErrReservedColumn    = errors.New("reserved column name")
	ErrSchemaMismatch    = errors.New("frame does not match table schema")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidSchema     = errors.New("invalid schema")
	ErrNotConnected      = errors.New("not connected")
	ErrUnsupported       = errors.New("not supported by this warehouse")
)
