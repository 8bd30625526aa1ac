// Package bot is the chat surface of campbot: the command handlers, the
// rendering of countdown messages and the Telegram side of the countdown
// collaborators (notices, forum topics as shared spaces).
package bot
