package account

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// UniqueFilename names a downloaded attachment. Every call embeds a fresh
// UUID, so repeated downloads of the same message never collide.
func UniqueFilename(m RawMessage) string {
	token := uuid.NewString()

	var name, mime string
	if m.File != nil {
		name = strings.TrimSpace(m.File.FileName)
		mime = m.File.MimeType
	}
	if name != "" {
		base := filepath.Base(filepath.Clean("/" + name))
		if base != "/" && base != "." {
			// Leading dots belong to the stem: ".bashrc" has no extension.
			ext := filepath.Ext(strings.TrimLeft(base, "."))
			return strings.TrimSuffix(base, ext) + "_" + token + ext
		}
	}
	return "download_" + strconv.Itoa(m.ID) + "_" + token + extensionFromMIME(mime)
}

// extensionFromMIME uses the subtype of a well-formed type/subtype value.
func extensionFromMIME(mime string) string {
	parts := strings.Split(strings.TrimSpace(mime), "/")
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	subtype := parts[1]
	if i := strings.IndexAny(subtype, "; "); i >= 0 {
		subtype = subtype[:i]
	}
	if subtype == "" {
		return ""
	}
	return "." + subtype
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
