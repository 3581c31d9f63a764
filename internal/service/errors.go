package service

import (
	"fmt"

	"github.com/masgolf/assetsync/internal/assetpath"
	"github.com/masgolf/assetsync/internal/model"
	"github.com/masgolf/assetsync/internal/storage"
)

// IndexInconsistencyError marks a row whose pointer disagrees with the
// object store where a batch expected them to agree. Batches skip such rows
// and leave them to the reconciler.
type IndexInconsistencyError struct {
	RowID  int64
	Path   string
	Reason string
}

func (e *IndexInconsistencyError) Error() string {
	return fmt.Sprintf("index row %d (%s): %s", e.RowID, e.Path, e.Reason)
}

// objectPath resolves the physical path a row points at. file_path wins;
// rows without one fall back to the path encoded in their URL.
func objectPath(store storage.ObjectStore, row *model.IndexRow) string {
	if row.FilePath != "" {
		return row.FilePath
	}
	if p, ok := store.PathFromURL(row.ImageURL); ok {
		return p
	}
	return ""
}

// locationOf derives all four pointer fields from one storage path.
func locationOf(store storage.ObjectStore, p string) model.Location {
	folder, date := assetpath.Decompose(p)
	return model.Location{
		Path:       p,
		URL:        store.PublicURL(p),
		FolderPath: folder,
		DateFolder: date,
	}
}

func rowUnit(row *model.IndexRow) string {
	return fmt.Sprintf("row %d", row.ID)
}
