package proxy

import (
	"errors"
	"hello/pkg/controller"
	"hello/pkg/serrors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strconv"
)

// noListingFS hides directories that have no index.html so the file server
// never renders a listing.
type noListingFS struct {
	http.FileSystem
}

func (fsys noListingFS) Open(name string) (http.File, error) {
	f, err := fsys.FileSystem.Open(name)
	if err != nil {
		return nil, err //nolint: wrapcheck
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, err //nolint: wrapcheck
	}
	if !info.IsDir() {
		return f, nil
	}

	index, err := fsys.FileSystem.Open(path.Join(name, "index.html"))
	if err != nil {
		_ = f.Close()

		return nil, fs.ErrNotExist
	}
	_ = index.Close()

	return f, nil
}

// Static serves root under prefix with long-lived caching headers. Missing
// files and directories answer 404.
func Static(prefix, root string) http.Handler {
	files := http.StripPrefix(prefix, http.FileServer(noListingFS{http.Dir(root)}))
	cacheControl := "public, max-age=" + strconv.Itoa(int(staticMaxAge.Seconds()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			controller.WriteError(w, r, serrors.KindOnly(serrors.ErrMethodNotAllowed), false)

			return
		}
		w.Header().Set("Cache-Control", cacheControl)
		files.ServeHTTP(w, r)
	})
}

// statRoot reports whether root exists and is a directory.
func statRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err //nolint: wrapcheck
	}
	if !info.IsDir() {
		return errors.New(root + " is not a directory")
	}

	return nil
}
