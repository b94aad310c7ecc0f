// Package process runs external programs (git, container runtimes, packaging
// commands) with captured output, exit codes and context cancellation that
// takes the whole process group down.
package process
