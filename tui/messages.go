package tui

// MsgRenewed signals that the session was extended.
type MsgRenewed struct{ Token string }

// MsgRenewFailed signals that extending the session failed.
type MsgRenewFailed struct{ Err error }
