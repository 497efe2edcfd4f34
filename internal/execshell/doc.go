// Package execshell runs git as a child process for clone and push workers.
//
// ShellExecutor logs each invocation with credentials masked and reports
// progress to an optional CommandEventObserver.
package execshell
