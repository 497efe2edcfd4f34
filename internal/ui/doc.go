// Package ui renders human-readable progress for git transfers on the console
// while detailed telemetry keeps flowing through the structured logger.
package ui
