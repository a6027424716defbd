// Package project inspects project directories on behalf of UI surfaces:
// detecting the toolchain and its dev-server command from manifest files,
// locating a display icon, and watching roots for changes that should
// trigger re-detection. All operations are best-effort; an unreadable or
// unrecognized project yields "unknown", never an error.
package project
