// Package buildinfo reports the version embedded by the Go toolchain.
package buildinfo

import (
	"fmt"
	"io"
	"runtime/debug"
)

// Info describes the running binary.
type Info struct {
	Version   string
	GoVersion string
	Revision  string
	Dirty     bool
}

// Get reads the build information of the running binary.
func Get() Info {
	i := Info{Version: "unknown", GoVersion: "unknown", Revision: "unknown"}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	i.Version = info.Main.Version
	if i.Version == "" || i.Version == "(devel)" {
		i.Version = "dev"
	}
	i.GoVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			i.Revision = setting.Value
		case "vcs.modified":
			i.Dirty = setting.Value == "true"
		}
	}
	return i
}

// Print writes a human readable description of i for the named binary.
func (i Info) Print(w io.Writer, name string) {
	_, _ = fmt.Fprintf(w, "%s %s\n", name, i.Version)
	_, _ = fmt.Fprintf(w, "  Go version: %s\n", i.GoVersion)
	_, _ = fmt.Fprintf(w, "  Revision:   %s\n", i.Revision)
	if i.Dirty {
		_, _ = fmt.Fprintf(w, "  Modified:   true\n")
	}
}
