// Package reconcile diffs desired teams and repositories against what a
// platform backend reports and performs only the missing create and add
// operations.
package reconcile
