package assetpath

import (
	"path"
	"strings"

	"github.com/gosimple/slug"
)

const unknownFolder = "unknown"

// ValidateFolder checks an entity folder key or sub-kind segment. Keys are
// slugs; the placeholder "unknown" is refused so that unresolved entities
// end up in the unmatched area instead.
func ValidateFolder(folder string) (string, error) {
	f := strings.TrimSpace(folder)
	if f == "" {
		return "", &InvalidNameError{Field: "folder", Value: folder, Reason: "empty"}
	}
	if strings.EqualFold(f, unknownFolder) || strings.HasPrefix(strings.ToLower(f), unknownFolder+"-") {
		return "", &InvalidNameError{Field: "folder", Value: folder, Reason: "unresolved entity, use the unmatched area"}
	}
	if !slug.IsSlug(f) {
		return "", &InvalidNameError{Field: "folder", Value: folder, Reason: "not a lowercase slug"}
	}
	return f, nil
}

// FolderName builds the customer folder key {romanized-name}-{phone last 4}.
func FolderName(romanized, phone string) (string, error) {
	base := slug.Make(romanized)
	if base == "" {
		return "", &InvalidNameError{Field: "folder", Value: romanized, Reason: "name has no usable characters"}
	}

	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) < 4 {
		return "", &InvalidNameError{Field: "phone", Value: phone, Reason: "fewer than 4 digits"}
	}

	return ValidateFolder(base + "-" + d[len(d)-4:])
}

// Decompose derives the denormalized folder_path and date_folder columns
// from a storage path. dateFolder is the last date-like segment of the
// directory, normalized, or empty when there is none.
func Decompose(p string) (folderPath, dateFolder string) {
	dir := path.Dir(p)
	if dir == "." {
		return "", ""
	}
	segments := strings.Split(dir, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if IsDateSegment(segments[i]) {
			d, _ := NormalizeDate(segments[i])
			return dir, d
		}
	}
	return dir, ""
}

// EntityRoot returns originals/{kind}/{folder} for a path under a
// folder-keyed kind, or false when the path has no entity folder.
func EntityRoot(p string) (string, bool) {
	segments := strings.Split(p, "/")
	if len(segments) < 4 || segments[0] != OriginalsRoot {
		return "", false
	}
	l, ok := layouts[Kind(segments[1])]
	if !ok || !l.folder {
		return "", false
	}
	return strings.Join(segments[:3], "/"), true
}
