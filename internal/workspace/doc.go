// Package workspace manages the scratch directories a pipeline stage works in.
//
// Every workspace is a fresh, uniquely named directory (for example
// distcache-publish-20261016-122336-1234) that is removed completely by
// Cleanup, whether the stage succeeded or not.
package workspace
