// Package assetpath maps the logical identity of an asset to its storage key.
// Everything here is pure: no I/O and no clock.
package assetpath

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind selects the top-level prefix under originals/.
type Kind string

const (
	KindCustomers   Kind = "customers"
	KindProducts    Kind = "products"
	KindBlog        Kind = "blog"
	KindMMS         Kind = "mms"
	KindAIGenerated Kind = "ai-generated"
	KindComponents  Kind = "components"
	KindWebsite     Kind = "website"
)

const (
	OriginalsRoot = "originals"
	UnmatchedRoot = "unmatched"
)

type layout struct {
	folder bool
	date   bool
}

var layouts = map[Kind]layout{
	KindCustomers:   {folder: true, date: true},
	KindProducts:    {folder: true},
	KindBlog:        {date: true},
	KindMMS:         {date: true},
	KindAIGenerated: {date: true},
	KindComponents:  {folder: true},
	KindWebsite:     {folder: true},
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := layouts[k]; !ok {
		return "", &InvalidNameError{Field: "kind", Value: s, Reason: "unknown asset kind, want one of " + KindList()}
	}
	return k, nil
}

// Kinds returns all supported kinds.
func Kinds() []Kind {
	return []Kind{KindCustomers, KindProducts, KindBlog, KindMMS, KindAIGenerated, KindComponents, KindWebsite}
}

// KindList joins Kinds for help and error text.
func KindList() string {
	names := make([]string, 0, len(layouts))
	for _, k := range Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

// Key is the logical identity of an asset.
type Key struct {
	Kind     Kind
	Folder   string // entity folder name, e.g. leenamgu-8768
	Date     string // any accepted date form; normalized on output
	SubKind  string // optional, e.g. detail or composition for products
	FileName string
}

// Canonical returns originals/{kind}/{folder}/{date}/{subKind}/{fileName},
// omitting the optional segments the kind does not use.
func Canonical(k Key) (string, error) {
	l, ok := layouts[k.Kind]
	if !ok {
		return "", &InvalidNameError{Field: "kind", Value: string(k.Kind), Reason: "unknown asset kind"}
	}

	name, err := NormalizeFileName(k.FileName)
	if err != nil {
		return "", err
	}

	segments := []string{OriginalsRoot, string(k.Kind)}

	if l.folder || k.Folder != "" {
		folder, err := ValidateFolder(k.Folder)
		if err != nil {
			return "", err
		}
		segments = append(segments, folder)
	}

	if l.date || k.Date != "" {
		date, err := NormalizeDate(k.Date)
		if err != nil {
			return "", err
		}
		segments = append(segments, date)
	}

	if k.SubKind != "" {
		sub, err := ValidateFolder(k.SubKind)
		if err != nil {
			return "", err
		}
		segments = append(segments, sub)
	}

	return strings.Join(append(segments, name), "/"), nil
}

// CanonicalPath is the four-argument form of Canonical.
func CanonicalPath(kind Kind, folderKey, dateKey, fileName string) (string, error) {
	return Canonical(Key{Kind: kind, Folder: folderKey, Date: dateKey, FileName: fileName})
}

// UnmatchedPath is the holding area for assets whose entity could not be
// resolved. Callers route there instead of guessing a folder.
func UnmatchedPath(dateKey, fileName string) (string, error) {
	name, err := NormalizeFileName(fileName)
	if err != nil {
		return "", err
	}
	date, err := NormalizeDate(dateKey)
	if err != nil {
		return "", err
	}
	return UnmatchedRoot + "/" + date + "/" + name, nil
}

// Prefix returns the folder prefix owned by an entity, without a trailing
// slash: originals/customers/leenamgu-8768.
func Prefix(kind Kind, folder string) (string, error) {
	if _, ok := layouts[kind]; !ok {
		return "", &InvalidNameError{Field: "kind", Value: string(kind), Reason: "unknown asset kind"}
	}
	f, err := ValidateFolder(folder)
	if err != nil {
		return "", err
	}
	return OriginalsRoot + "/" + string(kind) + "/" + f, nil
}

// NormalizeFileName NFC-normalizes and validates a file name. Names coming
// from macOS are often NFD and would otherwise not match their index rows.
func NormalizeFileName(name string) (string, error) {
	n := norm.NFC.String(strings.TrimSpace(name))
	switch {
	case n == "":
		return "", &InvalidNameError{Field: "file name", Value: name, Reason: "empty"}
	case n == "." || n == "..":
		return "", &InvalidNameError{Field: "file name", Value: name, Reason: "degenerate"}
	case strings.ContainsAny(n, "/\\"):
		return "", &InvalidNameError{Field: "file name", Value: name, Reason: "contains a path separator"}
	case strings.HasPrefix(n, "."):
		return "", &InvalidNameError{Field: "file name", Value: name, Reason: "hidden file"}
	}
	stem := strings.TrimSuffix(n, path.Ext(n))
	if strings.Trim(stem, " ._-") == "" {
		return "", &InvalidNameError{Field: "file name", Value: name, Reason: "no name before the extension"}
	}
	return n, nil
}

// Join builds a storage path from a prefix and a relative remainder.
func Join(prefix, rel string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	rel = strings.TrimPrefix(rel, "/")
	if prefix == "" {
		return rel
	}
	if rel == "" {
		return prefix
	}
	return prefix + "/" + rel
}

// Rebase swaps oldPrefix for newPrefix at the start of p.
func Rebase(p, oldPrefix, newPrefix string) (string, error) {
	oldPrefix = strings.TrimSuffix(oldPrefix, "/")
	if p != oldPrefix && !strings.HasPrefix(p, oldPrefix+"/") {
		return "", fmt.Errorf("path %q is not under %q", p, oldPrefix)
	}
	return Join(newPrefix, strings.TrimPrefix(p, oldPrefix)), nil
}

// HasPrefix reports whether p is the folder prefix itself or below it.
func HasPrefix(p, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// RequiresFolder reports whether paths of kind carry an entity folder.
func RequiresFolder(k Kind) bool {
	return layouts[k].folder
}

// RequiresDate reports whether paths of kind carry a date folder.
func RequiresDate(k Kind) bool {
	return layouts[k].date
}
