package commands

import "time"

// SpotifyQueueAction is the action id of the song request command.
const SpotifyQueueAction = "spotify.queue"

// Defaults is the built-in command table.
func Defaults() []Command {
	return []Command{
		{Name: "!hi", Response: "Salve @<user>", TagUser: true, Cooldown: 10 * time.Second},
		{Name: "!github", Response: "https://github.com/vininew921", Cooldown: 60 * time.Second},
	}
}

// SongRequest is the !sr command, registered only when Spotify is configured.
func SongRequest() Command {
	return Command{
		Name:         "!sr",
		Response:     "@<user> added <result> to the queue",
		Usage:        "@<user> usage: !sr <song or artist>",
		NoResult:     `@<user> no track found for "<query>"`,
		TagUser:      true,
		RequiresArgs: true,
		Action:       SpotifyQueueAction,
		Cooldown:     30 * time.Second,
	}
}
