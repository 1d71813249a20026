package session

import (
	"errors"
	"fmt"
)

// ErrNotConfirmed is returned by Apply when the caller did not confirm the plan.
// No connection is opened.
var ErrNotConfirmed = errors.New("rename not confirmed")

// Stage names the protocol step a ChannelError happened in.
type Stage string

const (
	StageDial  Stage = "dial"
	StageHello Stage = "hello"
	StageAuth  Stage = "auth"
	StageSend  Stage = "send"
	StageReply Stage = "reply"
)

// ChannelError is a connection-level failure. It aborts the session;
// rows after Index are never sent.
type ChannelError struct {
	Stage Stage
	Index int // 1-based request id, 0 during the handshake
	Err   error
}

func (e *ChannelError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("session %s failed at request %d: %v", e.Stage, e.Index, e.Err)
	}
	return fmt.Sprintf("session %s failed: %v", e.Stage, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// AuthError reports an auth_invalid answer to the auth message.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "authentication rejected"
	}
	return "authentication rejected: " + e.Message
}

// ProtocolError is a reply the session could not make sense of.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "protocol violation: " + e.Message
}
