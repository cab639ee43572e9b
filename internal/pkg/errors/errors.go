package errors

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalid       = errors.New("invalid")
	ErrInvalidConfig = errors.New("invalid config")
	ErrMalformedRow  = errors.New("malformed row")
	ErrInternal      = errors.New("internal")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

func IsMalformedRow(err error) bool {
	return errors.Is(err, ErrMalformedRow)
}
