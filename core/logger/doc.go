// Package logger is a standardized event logging framework for job control.
//
// Every state change of a job (started, stopped, resumed, signalled, killed,
// timed out) and every failed command is recorded as one JSON object per
// line, tagged with the session of the shell that produced it.
package logger
