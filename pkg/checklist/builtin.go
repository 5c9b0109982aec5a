package checklist

import (
	"embed"
	"io/fs"
)

// Builtin review checklists shipped with the binary, shadowed by any
// same-named checklist found in the configured directories.
//
//go:embed builtin/*.md
var builtinContent embed.FS

// BuiltinFS returns the embedded builtin checklists as a flat filesystem
func BuiltinFS() fs.FS {
	sub, err := fs.Sub(builtinContent, "builtin")
	if err != nil {
		// The builtin directory is embedded at compile time
		panic(err)
	}
	return sub
}
