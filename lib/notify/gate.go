package notify

import "context"

// AlwaysGranted is the gate for platforms that need no posting permission.
type AlwaysGranted struct{}

func (AlwaysGranted) Granted(context.Context) (bool, error) { return true, nil }

// Static is a fixed permission state.
type Static bool

func (s Static) Granted(context.Context) (bool, error) { return bool(s), nil }
