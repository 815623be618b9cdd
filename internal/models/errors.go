package models

import "errors"

// ErrFetch marks failures of the external data provider.
var ErrFetch = errors.New("fetch failed")
