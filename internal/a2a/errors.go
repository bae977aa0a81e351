package a2a

import "errors"

// ErrNotCancelable is returned by Service.CancelTask when the task has
// already reached a terminal status.
var ErrNotCancelable = errors.New("a2a: task is not cancelable")
