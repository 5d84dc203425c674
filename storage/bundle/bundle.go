// Package bundle exports and imports sets of blobs as deterministic
// TAR archives, for moving content between providers offline.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names
	// to identifiers.
	Labels map[string]ident.Identifier
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// entryName is the archive path for one blob: the identifier's wire
// form in hex, which is file-safe and sorts in wire-byte order.
func entryName(id ident.Identifier) string {
	return "blocks/" + hex.EncodeToString(id.AppendWire(nil))
}

// Export writes a deterministic TAR bundle containing the blobs for
// the given identifiers.
//
// The bundle bytes are deterministic: entry order is lexicographic and
// TAR headers are normalized. All exported bytes are verified against
// their identifiers before they are written.
func Export(ctx context.Context, w io.Writer, p storage.ContentProvider, ids []ident.Identifier, opts ExportOptions) error {
	if p == nil {
		return fmt.Errorf("bundle: nil provider")
	}

	uniq := make(map[string]ident.Identifier, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return ident.ErrInvalidIdentifier
		}
		uniq[entryName(id)] = id
	}

	names := make([]string, 0, len(uniq))
	for name := range uniq {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)

	blocks := make([]indexBlock, 0, len(names))
	for _, name := range names {
		id := uniq[name]
		b, err := storage.ReadBlob(ctx, p, id)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if !id.Matches(b) {
			_ = tw.Close()
			return storage.ErrCorrupted
		}
		if err := writeFile(tw, name, b); err != nil {
			_ = tw.Close()
			return err
		}
		blocks = append(blocks, indexBlock{ID: strings.TrimPrefix(name, "blocks/"), Size: len(b)})
	}

	if opts.IncludeIndex {
		idx := indexJSON{
			Version: FormatVersion,
			Hash:    "sha2-256",
			Blocks:  blocks,
		}

		if len(opts.Labels) > 0 {
			keys := make([]string, 0, len(opts.Labels))
			for k := range opts.Labels {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			labels := make([]indexLabel, 0, len(keys))
			for _, k := range keys {
				if k == "" {
					_ = tw.Close()
					return fmt.Errorf("bundle: empty label key")
				}
				v := opts.Labels[k]
				if !v.Defined() {
					_ = tw.Close()
					return ident.ErrInvalidIdentifier
				}
				labels = append(labels, indexLabel{Name: k, ID: hex.EncodeToString(v.AppendWire(nil))})
			}
			idx.Labels = labels
		}

		b, err := marshalCanonicalIndexJSON(idx)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", b); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to
	// return an error.
	IgnoreUnknown bool
}

// Import reads a bundle from r and imports all blobs into p.
//
// Default behavior is fail-closed: unknown entries cause an error.
// Use ImportWithOptions to allow ignoring unknown entries.
func Import(ctx context.Context, r io.Reader, p storage.ContentProvider) error {
	return ImportWithOptions(ctx, r, p, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and imports all blobs into p.
//
// Each blob's bytes are verified against the identifier in its entry
// name before the blob is stored.
func ImportWithOptions(ctx context.Context, r io.Reader, p storage.ContentProvider, opts ImportOptions) error {
	if p == nil {
		return fmt.Errorf("bundle: nil provider")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return fmt.Errorf("bundle: unknown entry: %s", name)
		}

		wire, derr := hex.DecodeString(strings.TrimPrefix(name, "blocks/"))
		if derr != nil {
			return fmt.Errorf("%w: entry %s", ident.ErrInvalidIdentifier, name)
		}
		id, rest, derr := ident.Decode(wire)
		if derr != nil || len(rest) != 0 {
			return fmt.Errorf("%w: entry %s", ident.ErrInvalidIdentifier, name)
		}

		payload, rerr := io.ReadAll(tr)
		if rerr != nil {
			return rerr
		}
		if !id.Matches(payload) {
			return storage.ErrCorrupted
		}

		if _, ok := seen[name]; ok {
			return fmt.Errorf("bundle: duplicate block entry: %s", name)
		}
		seen[name] = struct{}{}

		putID, perr := storage.WriteBlob(ctx, p, payload)
		if perr != nil {
			return perr
		}
		if putID != id {
			return storage.ErrCorrupted
		}
	}
}

type indexJSON struct {
	Version int          `json:"version"`
	Hash    string       `json:"hash"`
	Blocks  []indexBlock `json:"blocks"`
	Labels  []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	ID   string `json:"id"`
	Size int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func marshalCanonicalIndexJSON(idx indexJSON) ([]byte, error) {
	// indexJSON is composed only of structs + slices; encoding/json
	// will be deterministic.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		Uid:      0,
		Gid:      0,
		Uname:    "",
		Gname:    "",
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			return ""
		}
		if part == ".." {
			return ""
		}
		out = append(out, part)
	}
	return strings.Join(out, "/")
}
