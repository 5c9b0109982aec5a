package templates

import (
	"embed"
	"io/fs"
)

// Builtin prompt templates shipped with the binary. They cover the common
// generation tasks (commit messages, shell scripts, READMEs, docstrings,
// model documentation) and are shadowed by any same-named template found in
// the configured directories.
//
//go:embed builtin/*.md
var builtinContent embed.FS

// BuiltinFS returns the embedded builtin templates as a flat filesystem
func BuiltinFS() fs.FS {
	sub, err := fs.Sub(builtinContent, "builtin")
	if err != nil {
		// The builtin directory is embedded at compile time
		panic(err)
	}
	return sub
}
