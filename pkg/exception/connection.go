package exception

import "github.com/yanun0323/errors"

var (
	ErrConnectionClose = errors.New("connection closed")
	ErrEmptyDSN        = errors.New("connection: empty dsn")
)
