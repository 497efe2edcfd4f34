// Package cli builds the repofleet command hierarchy on Cobra and Viper.
//
// Each command resolves a platform token, wires the backend and git transport
// into an orchestration.Service, and prints a plain-text report.
package cli
