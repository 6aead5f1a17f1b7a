package engine

import (
	"fmt"
	"path"
	"strings"
)

// DuplicatePolicy decides what happens when two descriptors resolve to the
// same archive entry name.
type DuplicatePolicy string

const (
	// DuplicatesRename suffixes later duplicates with -1, -2, ... in listing order.
	DuplicatesRename DuplicatePolicy = "rename"
	// DuplicatesReject aborts the run before any archive bytes are written.
	DuplicatesReject DuplicatePolicy = "reject"
	// DuplicatesOverwrite keeps the names as-is; extraction keeps the last entry.
	DuplicatesOverwrite DuplicatePolicy = "overwrite"
)

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(s); p {
	case "":
		return DuplicatesRename, nil
	case DuplicatesRename, DuplicatesReject, DuplicatesOverwrite:
		return p, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q (expected rename, reject or overwrite)", s)
	}
}

// Item is a descriptor paired with the entry name it is archived under.
type Item struct {
	Descriptor ObjectDescriptor `json:"descriptor"`
	EntryName  string           `json:"entry"`
}

// SanitizeEntryName turns a display name into a relative, slash-separated
// archive path. Names that clean to nothing fall back to fallback.
func SanitizeEntryName(name, fallback string) string {
	name = strings.ReplaceAll(name, "\\", "/")

	var kept []string
	for _, part := range strings.Split(name, "/") {
		part = strings.TrimSpace(part)
		if part == "" || part == "." || part == ".." {
			continue
		}
		kept = append(kept, part)
	}

	if len(kept) == 0 {
		return fallback
	}
	return strings.Join(kept, "/")
}

// ResolveEntryNames assigns an entry name to every descriptor, in order.
func ResolveEntryNames(descs []ObjectDescriptor, policy DuplicatePolicy) ([]Item, error) {
	items := make([]Item, 0, len(descs))
	used := make(map[string]struct{}, len(descs))
	suffixes := make(map[string]int)

	for _, desc := range descs {
		name := SanitizeEntryName(desc.Name, desc.ID)

		if _, taken := used[name]; taken {
			switch policy {
			case DuplicatesReject:
				return nil, fmt.Errorf("%w: %q (object %s)", ErrDuplicateEntryName, name, desc.ID)
			case DuplicatesOverwrite:
			default:
				name = nextFreeName(name, used, suffixes)
			}
		}

		used[name] = struct{}{}
		items = append(items, Item{Descriptor: desc, EntryName: name})
	}

	return items, nil
}

func nextFreeName(name string, used map[string]struct{}, suffixes map[string]int) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" || strings.HasSuffix(stem, "/") {
		stem, ext = name, ""
	}

	for n := suffixes[name] + 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, n, ext)
		if _, taken := used[candidate]; !taken {
			suffixes[name] = n
			return candidate
		}
	}
}
