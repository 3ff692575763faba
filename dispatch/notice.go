package dispatch

import (
	"context"
	"fmt"

	"github.com/nicebartender/claudio-bot/chat"
	"github.com/nicebartender/claudio-bot/command"
)

type NoticeKind int

const (
	NoticeWrongChannel NoticeKind = iota
	NoticeNotOwner
	NoticeMissingPermissions
	NoticeMissingBotPermissions
	NoticeIncorrectParameters
	NoticeError
	NoticeFailure
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeWrongChannel:
		return "wrong_channel"
	case NoticeNotOwner:
		return "not_owner"
	case NoticeMissingPermissions:
		return "missing_permissions"
	case NoticeMissingBotPermissions:
		return "missing_bot_permissions"
	case NoticeIncorrectParameters:
		return "incorrect_parameters"
	case NoticeError:
		return "error"
	default:
		return "failure"
	}
}

// Notice is a reply the engine sends when a command does not run or fails.
type Notice struct {
	Kind       NoticeKind
	Descriptor *command.Descriptor
	Prefix     string
	Missing    chat.Permission
	// Text is the handler's own message, if any.
	Text string
}

func (n Notice) String() string {
	switch n.Kind {
	case NoticeWrongChannel:
		return "❌ This command can only be used in a direct message."
	case NoticeNotOwner:
		return "❌ Only the bot owner can use this command."
	case NoticeMissingPermissions:
		return "❌ You need the following permissions to use this command: " + n.Missing.String() + "."
	case NoticeMissingBotPermissions:
		return "❌ The bot needs the following permissions to run this command: " + n.Missing.String() + "."
	case NoticeIncorrectParameters:
		msg := "❌ Incorrect parameters."
		if n.Text != "" {
			msg = "❌ " + n.Text
		}
		if n.Descriptor != nil {
			msg += fmt.Sprintf("\nUsage: `%s`", n.Descriptor.Usage(n.Prefix))
		}
		return msg
	case NoticeError:
		return "❌ " + n.Text
	default:
		return "❌ Failed to process the command. Please try again later."
	}
}

// Notifier delivers notices to a channel.
type Notifier interface {
	Notify(ctx context.Context, channelID uint64, n Notice) error
}

// MessengerNotifier sends the notice text as a plain message.
type MessengerNotifier struct {
	Messenger chat.Messenger
}

func (m MessengerNotifier) Notify(ctx context.Context, channelID uint64, n Notice) error {
	return m.Messenger.Send(ctx, channelID, n.String())
}
