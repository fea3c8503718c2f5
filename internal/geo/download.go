package geo

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultCountyURL is the Census Bureau county boundary shapefile.
const DefaultCountyURL = "https://www2.census.gov/geo/tiger/TIGER2024/COUNTY/tl_2024_us_county.zip"

// LoadRemote downloads a zipped shapefile, extracts it under tempDir
// and loads the contained .shp into a feature collection.
func LoadRemote(ctx context.Context, client *http.Client, url, tempDir string) (*Collection, error) {
	if client == nil {
		client = http.DefaultClient
	}
	log := zap.L().With(zap.String("component", "geo.download"))

	zipPath := filepath.Join(tempDir, filepath.Base(url))
	log.Info("downloading boundary shapefile", zap.String("url", url))
	if err := downloadFile(ctx, client, url, zipPath); err != nil {
		return nil, eris.Wrap(err, "geo: download boundary shapefile")
	}

	extractDir := filepath.Join(tempDir, "boundaries")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "geo: create extract dir")
	}
	if err := extractZIP(zipPath, extractDir); err != nil {
		return nil, eris.Wrap(err, "geo: extract boundary zip")
	}

	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return nil, eris.Wrap(err, "geo: find .shp file")
	}

	col, err := LoadShapefile(shpPath)
	if err != nil {
		return nil, err
	}
	log.Info("boundary shapefile loaded", zap.Int("features", col.Len()))
	return col, nil
}

func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, resp.Body); err != nil {
		return eris.Wrap(err, "write file")
	}
	return nil
}

func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		destPath := filepath.Join(destDir, filepath.Base(f.Name))

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", f.Name)
		}
		outFile, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "create %s", destPath)
		}
		if _, err := io.Copy(outFile, rc); err != nil {
			_ = outFile.Close()
			_ = rc.Close()
			return eris.Wrapf(err, "extract %s", f.Name)
		}
		_ = outFile.Close()
		_ = rc.Close()
	}
	return nil
}

func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
