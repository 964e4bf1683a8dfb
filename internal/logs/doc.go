// Package logs reads the daemon log file with bounded memory so the CLI can
// show recent lines and follow new ones over IPC.
//
// A negative offset means "the last Limit lines"; any other offset resumes
// reading where a previous call left off. Follow mode polls the file until
// new lines appear, the wait elapses, or the context is canceled.
package logs
