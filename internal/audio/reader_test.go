package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRegistry_Lookup(t *testing.T) {
	reg := DefaultRegistry()

	testCases := []struct {
		name   string
		file   string
		want   string
		wantOK bool
	}{
		{"mp3 lowercase", "song.mp3", "mp3", true},
		{"mp3 uppercase", "SONG.MP3", "mp3", true},
		{"flac", "dir/track.flac", "flac", true},
		{"wav", "take.wav", "wav", true},
		{"wave alias", "take.wave", "wav", true},
		{"opus stream", "voice.opk", "opus", true},
		{"unknown", "notes.txt", "", false},
		{"no extension", "README", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, ok := reg.Lookup(tc.file)
			if ok != tc.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tc.file, ok, tc.wantOK)
			}
			if ok && f.Name != tc.want {
				t.Errorf("Lookup(%q) = %q, want %q", tc.file, f.Name, tc.want)
			}
		})
	}
}

func TestDefaultRegistry_Identify(t *testing.T) {
	reg := DefaultRegistry()

	testCases := []struct {
		name string
		data []byte
		want string
	}{
		{"ID3 tagged mp3", append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), 0xFF, 0xFB, 0x90, 0x00), "mp3"},
		{"padded ID3 mp3", append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"), 0xFF, 0xFB, 0x90, 0x00), "mp3"},
		{"ID3 tagged flac", []byte("ID3\x04\x00\x00\x00\x00\x00\x00fLaC\x00\x00\x00\x22"), "flac"},
		{"bare mp3 frame", []byte{0xFF, 0xFB, 0x90, 0x00}, "mp3"},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), "flac"},
		{"wav", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), "wav"},
		{"opus stream", []byte("OPKSTRM1\x00\x00\xbb\x80\x02"), "opus"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, ok := reg.Identify(tc.data)
			if !ok {
				t.Fatalf("Identify found no format, want %q", tc.want)
			}
			if f.Name != tc.want {
				t.Errorf("Identify = %q, want %q", f.Name, tc.want)
			}
		})
	}

	if _, ok := reg.Identify([]byte("plain text")); ok {
		t.Error("Identify matched plain text")
	}
	if f, ok := reg.Identify([]byte("ID3\x04\x00\x00\x00\x00\x00\x00plain text")); ok {
		t.Errorf("Identify matched a bare ID3 tag as %q", f.Name)
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(WAVFormat()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register(WAVFormat()); err == nil {
		t.Error("Expected error registering wav twice")
	}
	if err := reg.Register(Format{Name: "broken"}); err == nil {
		t.Error("Expected error registering a format without Open")
	}
	if got := len(reg.Formats()); got != 1 {
		t.Errorf("Formats() has %d entries, want 1", got)
	}
}

// TestRegistry_Independent verifies registries do not share state
func TestRegistry_Independent(t *testing.T) {
	a := NewRegistry()
	b := DefaultRegistry()

	if _, ok := a.Lookup("x.mp3"); ok {
		t.Error("empty registry resolved mp3")
	}
	if _, ok := b.Lookup("x.mp3"); !ok {
		t.Error("default registry did not resolve mp3")
	}
}

func TestRegistry_SourceErrors(t *testing.T) {
	reg := DefaultRegistry()

	if _, err := reg.Source("empty.mp3", nil); !errors.Is(err, ErrTruncated) {
		t.Errorf("empty source error = %v, want ErrTruncated", err)
	}
	if _, err := reg.Source("mystery.bin", []byte("not audio at all")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("unknown source error = %v, want ErrUnknownFormat", err)
	}
	if _, err := reg.Source("short.opk", []byte("OPKS")); err == nil {
		t.Error("Expected error for truncated opus header")
	}
}

func TestRegistry_SourceSniffsWithoutExtension(t *testing.T) {
	reg := DefaultRegistry()

	data := append([]byte("OPKSTRM1"), 0x00, 0x00, 0xBB, 0x80, 0x02)
	src, err := reg.Source("stream-without-extension", data)
	if err != nil {
		t.Fatalf("Source failed: %v", err)
	}
	if src.Format != "opus" {
		t.Errorf("Format = %q, want opus", src.Format)
	}
	if src.Start != opusHeaderSize || src.End != len(data) {
		t.Errorf("frame range = %d-%d, want %d-%d", src.Start, src.End, opusHeaderSize, len(data))
	}
}

func TestRegistry_SourcePrefersContentOverExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mislabeled.mp3")
	writeTestWAV(t, path, 8000, 1, 16, rampPCM(100, 1))

	src, err := DefaultRegistry().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if src.Format != "wav" {
		t.Errorf("Format = %q, want wav", src.Format)
	}
}

func TestRegistry_SourceRetriesSniffedFormat(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(WAVFormat()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	broken := Format{
		Name:       "raw",
		Extensions: []string{"raw"},
		Open: func([]byte) (Codec, int, int, error) {
			return nil, 0, 0, errors.New("raw is not supported")
		},
	}
	if err := reg.Register(broken); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "take.wav")
	writeTestWAV(t, path, 8000, 1, 16, rampPCM(100, 1))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	src, err := reg.Source("take.raw", data)
	if err != nil {
		t.Fatalf("Source failed: %v", err)
	}
	if src.Format != "wav" {
		t.Errorf("Format = %q, want wav", src.Format)
	}

	// Nothing to fall back to
	if _, err := reg.Source("junk.raw", []byte("not audio")); err == nil {
		t.Error("Expected error when no format can open the data")
	}
}

func TestRegistry_Load(t *testing.T) {
	reg := DefaultRegistry()

	if _, err := reg.Load(filepath.Join(t.TempDir(), "missing.mp3")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load missing file error = %v, want os.ErrNotExist", err)
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	writeTestWAV(t, path, 44100, 2, 16, rampPCM(3000, 2))

	src, err := reg.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if src.Format != "wav" {
		t.Errorf("Format = %q, want wav", src.Format)
	}
	if got, want := len(src.Frames()), 3000*2*2; got != want {
		t.Errorf("frame region = %d bytes, want %d", got, want)
	}
}
