// Package archive reads and writes the build artifact: a tar stream,
// optionally gzip or zstd compressed, chosen by file extension.
//
// Extraction only ever writes the requested top-level entries, never writes
// anything below a .git component, and rejects entries that would land
// outside the destination directory.
package archive
