package gateway

import "errors"

// ErrUnregisteredKind is returned when EnsureLoaded is called for a model
// kind that was never registered with the loader.
var ErrUnregisteredKind = errors.New("gateway: model kind not registered")
