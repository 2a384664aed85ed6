package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrDisposed = errors.New("player disposed")
