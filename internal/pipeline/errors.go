package pipeline

import "errors"

// ErrSpeakerNotFound names the unknown-speaker condition. Manager lookups
// (Task, ListenerPrefs) report an unknown speaker through their bool result
// and do not return this error.
var ErrSpeakerNotFound = errors.New("pipeline: speaker not found")
