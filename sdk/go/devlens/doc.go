// Package devlens is the Go client SDK for the devlens inspector
// protocol. It dials a running engine, performs the handshake, and
// exposes typed helpers for the command surface: captured requests,
// replay, error groups, and metrics.
//
// Correlated request/reply commands and unsolicited server events
// travel on the same connection; replies are matched by correlation
// id while events surface on the Events channel.
package devlens
