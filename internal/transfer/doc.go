// Package transfer clones and pushes repositories in bounded concurrent chunks
// and retries failed pushes.
package transfer
