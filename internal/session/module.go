package session

import (
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/pkg/types"
)

// Module is a cached handle onto one loaded binary image.
type Module struct {
	target *Target
	handle backend.ModuleHandle
	path   string

	files       []string
	filesLoaded bool

	// stale is set once the target's cache was rebuilt without this module.
	stale bool
}

func newModule(t *Target, h backend.ModuleHandle) *Module {
	return &Module{target: t, handle: h, path: h.Path()}
}

// Target returns the owning target.
func (m *Module) Target() *Target { return m.target }

// Path returns the image path.
func (m *Module) Path() string { return m.path }

// Name returns the image's base name.
func (m *Module) Name() string { return filepath.Base(m.path) }

// IsValid reports whether the module still belongs to the target's current
// module cache.
func (m *Module) IsValid() bool { return !m.stale }

// Files returns the sorted source file list. The backend is asked once per
// module; callers get their own copy.
func (m *Module) Files() []string {
	if !m.filesLoaded && !m.stale {
		m.files = m.handle.SourceFiles()
		sort.Strings(m.files)
		m.filesLoaded = true
	}
	return append([]string(nil), m.files...)
}

// IsSystem reports whether the image lives under the platform's system
// library directories.
func (m *Module) IsSystem() bool {
	return isSystemPath(m.path)
}

func systemPrefixes() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/usr/lib/", "/System/Library/"}
	case "windows":
		return []string{`c:\windows\`}
	default:
		return []string{"/usr/lib/", "/usr/lib64/", "/lib/", "/lib64/"}
	}
}

func isSystemPath(path string) bool {
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
	}
	for _, prefix := range systemPrefixes() {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Snapshot copies the module out, including its file list, so it can be
// scanned off the debug context.
func (m *Module) Snapshot() types.ModuleInfo {
	return types.ModuleInfo{
		Path:   m.path,
		Name:   m.Name(),
		System: m.IsSystem(),
		Files:  m.Files(),
	}
}
