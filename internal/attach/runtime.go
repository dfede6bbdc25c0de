package attach

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// JavaHomeRuntime is the LocalRuntime found under JAVA_HOME.
type JavaHomeRuntime struct {
	home    string
	version string
}

// NewJavaHomeRuntime reads the runtime pointed to by $JAVA_HOME.
func NewJavaHomeRuntime() *JavaHomeRuntime {
	return LoadJavaHomeRuntime(os.Getenv("JAVA_HOME"))
}

// LoadJavaHomeRuntime reads the release file of the runtime at home. A
// missing home or release file yields an empty version.
func LoadJavaHomeRuntime(home string) *JavaHomeRuntime {
	r := &JavaHomeRuntime{home: home}
	if home == "" {
		return r
	}
	f, err := os.Open(filepath.Join(home, "release"))
	if err != nil {
		return r
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		value, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "JAVA_VERSION=")
		if ok {
			r.version = specificationVersion(strings.Trim(value, `"`))
			break
		}
	}
	return r
}

// SpecificationVersion returns e.g. "1.8" or "17", or "" when unknown.
func (r *JavaHomeRuntime) SpecificationVersion() string {
	return r.version
}

// Home returns the runtime directory.
func (r *JavaHomeRuntime) Home() string {
	return r.home
}

// specificationVersion reduces a full runtime version to the form of the
// java.specification.version property.
func specificationVersion(full string) string {
	full = strings.TrimSpace(full)
	if full == "" {
		return ""
	}
	// Drop pre-release and build suffixes: "17-ea", "11.0.2+9".
	if i := strings.IndexAny(full, "-+"); i >= 0 {
		full = full[:i]
	}
	parts := strings.Split(full, ".")
	if parts[0] == "1" && len(parts) > 1 {
		return "1." + parts[1]
	}
	return parts[0]
}
