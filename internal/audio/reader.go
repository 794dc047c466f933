package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Source is a compressed audio payload held entirely in memory, together
// with the codec that understands it. Frames live in Data[Start:End].
type Source struct {
	Name   string
	Format string
	Data   []byte
	Start  int
	End    int
	Codec  Codec
}

// Frames returns the region of Data that holds audio frames
func (s *Source) Frames() []byte {
	return s.Data[s.Start:s.End]
}

// Format describes one supported container/codec pairing
type Format struct {
	Name       string
	Extensions []string

	// Identify reports whether data looks like this format
	Identify func(data []byte) bool

	// Open returns a fresh codec for data plus the byte range holding frames
	Open func(data []byte) (codec Codec, start, end int, err error)
}

// Registry maps file extensions and content signatures to formats.
// A zero Registry is empty; use DefaultRegistry for the built-in formats.
type Registry struct {
	mu      sync.RWMutex
	formats []Format
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry creates a registry holding the built-in formats
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, f := range []Format{MP3Format(), FLACFormat(), WAVFormat(), OpusFormat()} {
		// Built-in names are distinct so this cannot fail
		_ = r.Register(f)
	}
	return r
}

// Register adds a format. Formats registered earlier win content sniffing ties.
func (r *Registry) Register(f Format) error {
	if f.Name == "" || f.Open == nil {
		return fmt.Errorf("format needs a name and an Open function")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.formats {
		if strings.EqualFold(existing.Name, f.Name) {
			return fmt.Errorf("format %q already registered", f.Name)
		}
	}
	r.formats = append(r.formats, f)
	return nil
}

// Formats returns the registered formats in registration order
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Format(nil), r.formats...)
}

// Lookup finds a format by the extension of name
func (r *Registry) Lookup(name string) (Format, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return Format{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.formats {
		for _, e := range f.Extensions {
			if strings.EqualFold(strings.TrimPrefix(e, "."), ext) {
				return f, true
			}
		}
	}
	return Format{}, false
}

// Identify finds a format by sniffing the leading bytes of data
func (r *Registry) Identify(data []byte) (Format, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.formats {
		if f.Identify != nil && f.Identify(data) {
			return f, true
		}
	}
	return Format{}, false
}

// Source wraps data in a Source using the format matching name's extension,
// falling back to content sniffing. Content wins when the extension's format
// rejects the data and another format claims it.
func (r *Registry) Source(name string, data []byte) (*Source, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w: no data", name, ErrTruncated)
	}

	sniffed, sniffedOK := r.Identify(data)
	f, ok := r.Lookup(name)
	switch {
	case !ok:
		f, ok = sniffed, sniffedOK
	case f.Identify != nil && !f.Identify(data) && sniffedOK:
		f = sniffed
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownFormat)
	}

	codec, start, end, err := f.Open(data)
	if err != nil && sniffedOK && sniffed.Name != f.Name {
		var retryErr error
		codec, start, end, retryErr = sniffed.Open(data)
		if retryErr == nil {
			f, err = sniffed, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s as %s: %w", name, f.Name, err)
	}
	if start < 0 || end > len(data) || start > end {
		return nil, fmt.Errorf("%s: %w: frame range %d-%d outside %d bytes", name, ErrTruncated, start, end, len(data))
	}

	return &Source{
		Name:   name,
		Format: f.Name,
		Data:   data,
		Start:  start,
		End:    end,
		Codec:  codec,
	}, nil
}

// Load reads path into memory and wraps it in a Source
func (r *Registry) Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return r.Source(path, data)
}
