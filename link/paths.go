package link

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// PathEntry is one file listed in an extracted package's
// info/paths.json: where it goes, how to materialize it, and (for
// files needing prefix rewriting) the placeholder to replace.
type PathEntry struct {
	Path              string `json:"_path"`
	PathType          string `json:"path_type"`
	PrefixPlaceholder string `json:"prefix_placeholder,omitempty"`
	FileMode          string `json:"file_mode,omitempty"`
	SHA256            string `json:"sha256,omitempty"`
	SizeInBytes       int64  `json:"size_in_bytes,omitempty"`
}

// PathsManifest is the top-level info/paths.json document.
type PathsManifest struct {
	PathsVersion int         `json:"paths_version"`
	Paths        []PathEntry `json:"paths"`
}

// ReadPathsManifest loads info/paths.json from an extracted package
// directory.
func ReadPathsManifest(extractedDir string) (PathsManifest, error) {
	data, err := os.ReadFile(filepath.Join(extractedDir, "info", "paths.json"))
	if err != nil {
		return PathsManifest{}, err
	}
	var m PathsManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return PathsManifest{}, err
	}
	return m, nil
}
