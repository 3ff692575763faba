package command

import (
	"fmt"

	"github.com/nicebartender/claudio-bot/chat"
)

// UserError is a problem the user can fix. The dispatcher replies with its
// message and does not log it as a failure.
type UserError struct {
	Message string
}

func (e *UserError) Error() string { return e.Message }

func Errorf(format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// ParameterError reports parameters that passed validation but make no sense
// to the handler.
type ParameterError struct {
	Message string
}

func (e *ParameterError) Error() string {
	if e.Message == "" {
		return "incorrect parameters"
	}
	return "incorrect parameters: " + e.Message
}

func ParameterErrorf(format string, args ...any) error {
	return &ParameterError{Message: fmt.Sprintf(format, args...)}
}

// BotPermissionError reports permissions the bot found it lacks while running.
type BotPermissionError struct {
	Missing   chat.Permission
	ChannelID uint64
}

func (e *BotPermissionError) Error() string {
	if e.ChannelID != 0 {
		return fmt.Sprintf("bot is missing permissions in channel %d: %s", e.ChannelID, e.Missing)
	}
	return "bot is missing permissions: " + e.Missing.String()
}
