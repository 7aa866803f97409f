// Package game implements the Lee Soon Sin session rules: lobby and entry
// codes, turn ordering, coin flips, the play deadline, and player removal.
//
// Every mutation runs under the Service mutex and pushes a per-recipient
// state view through a Notifier, which the WebSocket hub implements.
package game
