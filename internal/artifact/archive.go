package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

// DefaultModuleSuffix marks archive members that are modules.
const DefaultModuleSuffix = ".mod"

// DefaultMaxMemberSize caps the uncompressed size of one archive member.
const DefaultMaxMemberSize int64 = 64 << 20

// ErrMemberTooLarge is returned when an archive member exceeds the size
// ceiling, whether declared in its header or found while reading.
var ErrMemberTooLarge = errors.New("archive member exceeds size limit")

// EntryKind distinguishes modules from resources.
type EntryKind int

const (
	EntryModule EntryKind = iota
	EntryResource
)

func (k EntryKind) String() string {
	if k == EntryModule {
		return "module"
	}
	return "resource"
}

// Entry is one resolvable name contributed by an artifact.
type Entry struct {
	Name     string
	Kind     EntryKind
	Data     []byte
	Artifact string
}

// Entries expands a into the resolvable entries it contributes. Archive
// members larger than maxMemberSize fail the expansion; zero or less means
// DefaultMaxMemberSize.
func Entries(a Artifact, moduleSuffix string, maxMemberSize int64) ([]Entry, error) {
	switch a.Type {
	case TypeModule:
		return []Entry{{Name: a.Name, Kind: EntryModule, Data: a.Content, Artifact: a.Name}}, nil
	case TypeResource:
		return []Entry{{Name: a.Name, Kind: EntryResource, Data: a.Content, Artifact: a.Name}}, nil
	case TypeArchive:
		return archiveEntries(a, moduleSuffix, maxMemberSize)
	default:
		return nil, fmt.Errorf("artifact %q: unknown type %q", a.Name, a.Type)
	}
}

func archiveEntries(a Artifact, moduleSuffix string, maxMemberSize int64) ([]Entry, error) {
	if moduleSuffix == "" {
		moduleSuffix = DefaultModuleSuffix
	}
	if maxMemberSize <= 0 {
		maxMemberSize = DefaultMaxMemberSize
	}
	r, err := zip.NewReader(bytes.NewReader(a.Content), int64(len(a.Content)))
	if err != nil {
		return nil, fmt.Errorf("artifact %q: open archive: %w", a.Name, err)
	}

	var out []Entry
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(strings.TrimPrefix(f.Name, "/"))
		data, err := readMember(f, maxMemberSize)
		if err != nil {
			return nil, fmt.Errorf("artifact %q: read %s: %w", a.Name, f.Name, err)
		}
		out = append(out, Entry{Name: name, Kind: EntryResource, Data: data, Artifact: a.Name})
		if strings.HasSuffix(name, moduleSuffix) {
			module := strings.ReplaceAll(strings.TrimSuffix(name, moduleSuffix), "/", ".")
			out = append(out, Entry{Name: module, Kind: EntryModule, Data: data, Artifact: a.Name})
		}
	}
	return out, nil
}

func readMember(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: declares %d bytes, limit %d", ErrMemberTooLarge, f.UncompressedSize64, limit)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	// The header can lie; never read past the limit.
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit %d", ErrMemberTooLarge, limit)
	}
	return data, nil
}

// BuildArchive packs files (member name -> content) into a zip archive.
// Members are written in the order given by names.
func BuildArchive(names []string, files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		fw, err := w.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := fw.Write(files[name]); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}
