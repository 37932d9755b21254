// Package chat turns Twitch chat lines into command replies.
//
// It provides two pieces:
//   - Router: parses a line, consults the command registry (cooldowns
//     included), runs an external action when the command names one, and
//     renders the reply.
//   - TwitchTransport: an IRC connection over go-twitch-irc that feeds inbound
//     messages to the router and sends replies through a rate limiter. It
//     reconnects with exponential backoff and reads the chat credential through
//     the oauth broker before every attempt, so a refreshed token is picked up
//     without knowing how it is stored.
package chat
