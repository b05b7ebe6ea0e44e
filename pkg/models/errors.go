package models

import "errors"

// ErrInvalidValue marks failures caused by bad input: unknown upload mode,
// missing folder, malformed CSV, unknown dataset, rejected request.
var ErrInvalidValue = errors.New("invalid value")
