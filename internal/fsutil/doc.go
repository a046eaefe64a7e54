// Package fsutil holds the filesystem helpers shared by the build tasks:
// module folder enumeration, doublestar source globbing and atomic,
// change-aware output writes.
package fsutil
