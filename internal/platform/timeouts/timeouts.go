// Package timeouts defines shared timeout constants used across commands.
// Centralizing these values prevents drift between process boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// DiscordConnect caps the wait time when opening the Discord gateway session.
const DiscordConnect = 10 * time.Second

// Shutdown limits how long the bot waits for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second

// CLIRequest caps the time allowed for a single syncctl store operation.
const CLIRequest = 30 * time.Second
