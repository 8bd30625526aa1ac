// Package tgui builds text for Telegram's HTML parse mode.
//
// Values of type H are already escaped; plain strings passed to the helpers
// are escaped on the way in.
package tgui
