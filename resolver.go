package main

import (
	"os"
	"strings"

	"edittrack/logger"
	"edittrack/tracker"

	"github.com/neovim/go-client/nvim"
)

// bufferResolver reads the current text at a tracked location, preferring a
// live editor buffer over the file on disk so unsaved edits are seen.
type bufferResolver struct {
	n *nvim.Nvim
}

// ReadText implements tracker.ContentResolver. A deleted file or a range
// the current content no longer covers reports not-found; the tracker then
// treats the content as empty.
func (r *bufferResolver) ReadText(loc tracker.Location) (string, bool) {
	content, ok := r.readSource(loc.Path)
	if !ok {
		return "", false
	}
	if loc.StartByte < 0 || loc.EndByte < loc.StartByte || loc.EndByte > len(content) {
		return "", false
	}
	return content[loc.StartByte:loc.EndByte], true
}

func (r *bufferResolver) readSource(path string) (string, bool) {
	if r.n != nil {
		if content, ok := r.readBuffer(path); ok {
			return content, true
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debug("content for %s unresolvable: %v", path, err)
		return "", false
	}
	return string(data), true
}

// readBuffer looks for a loaded buffer with the given name.
func (r *bufferResolver) readBuffer(path string) (string, bool) {
	buffers, err := r.n.Buffers()
	if err != nil {
		return "", false
	}

	for _, buf := range buffers {
		name, err := r.n.BufferName(buf)
		if err != nil || name != path {
			continue
		}
		lines, err := r.n.BufferLines(buf, 0, -1, true)
		if err != nil {
			return "", false
		}
		parts := make([]string, len(lines))
		for i, line := range lines {
			parts[i] = string(line)
		}
		return strings.Join(parts, "\n"), true
	}
	return "", false
}

// staticIdentity reports a fixed endpoint identifier resolved at startup.
type staticIdentity struct {
	endpoint string
}

func (s *staticIdentity) CurrentEndpoint() string { return s.endpoint }
