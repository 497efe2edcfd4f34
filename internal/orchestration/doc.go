// Package orchestration implements the setup, update, migrate, issue, and
// verify commands on top of reconciliation and bulk git transfers.
package orchestration
