package telegram

import "time"

const (
	// telegramMaxMessageLen is the safe limit for Telegram messages.
	// Telegram's hard limit is 4096.
	telegramMaxMessageLen = 4000

	// callbackPrefix marks inline keyboard payloads that carry a selection.
	callbackPrefix = "sel:"

	// adminCacheTTL bounds how long a getChatAdministrators result is trusted.
	adminCacheTTL = 5 * time.Minute

	// adminCacheSize is the number of chats whose admin lists are kept.
	adminCacheSize = 256

	// pollTimeout is the long polling timeout in seconds.
	pollTimeout = 30
)

// Chat member statuses reported by Telegram.
const (
	memberCreator       = "creator"
	memberAdministrator = "administrator"
	memberMember        = "member"
	memberLeft          = "left"
	memberKicked        = "kicked"
)

const (
	msgSleeping     = "Zzzzz ZZZzz zzzZ ZZzzz 😴"
	msgGroupOnly    = "This command can only be used in group chats"
	msgOnlyCreators = "Only superadmins can add this bot to a group! 👮‍♂️"
	msgGenericError = "😰 An error occurred. Please try again."
	msgNoIMAP       = "The IMAP service is not configured."
)
