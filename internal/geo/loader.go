package geo

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propsight/market-cli/internal/db"
)

// districtShapefileURL points at the postal district boundary export. The
// archive holds one polygon per district with CODE and NAME attributes.
const districtShapefileURL = "https://data.gov.sg/datasets/d_sg_postal_districts/download/postal_districts.zip"

// ImportDistricts downloads the district boundary shapefile and loads it
// into market.districts, replacing whatever was there. The Locator queries
// this table.
func ImportDistricts(ctx context.Context, pool db.Pool, httpClient *http.Client, tempDir string) error {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	log := zap.L().With(zap.String("component", "geo.loader"))

	zipPath := filepath.Join(tempDir, "postal_districts.zip")
	log.Info("downloading district shapefile", zap.String("url", districtShapefileURL))
	if err := downloadFile(ctx, httpClient, districtShapefileURL, zipPath); err != nil {
		return eris.Wrap(err, "geo: download district shapefile")
	}

	extractDir := filepath.Join(tempDir, "districts")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return eris.Wrap(err, "geo: create extract dir")
	}
	if err := extractZIP(zipPath, extractDir); err != nil {
		return eris.Wrap(err, "geo: extract district zip")
	}

	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return eris.Wrap(err, "geo: find .shp file")
	}
	return LoadDistrictShapefile(ctx, pool, shpPath)
}

// LoadDistrictShapefile loads one district shapefile into market.districts.
// The table is replaced wholesale, so a reload after a boundary revision
// is safe.
func LoadDistrictShapefile(ctx context.Context, pool db.Pool, shpPath string) error {
	log := zap.L().With(zap.String("component", "geo.loader"))

	reader, err := shp.Open(shpPath)
	if err != nil {
		return eris.Wrap(err, "geo: open shapefile")
	}
	defer func() { _ = reader.Close() }()

	codeIdx := fieldIndex(reader, "CODE")
	nameIdx := fieldIndex(reader, "NAME")
	if codeIdx < 0 || nameIdx < 0 {
		return eris.New("geo: required shapefile fields (CODE, NAME) not found")
	}

	var rows [][]any
	for reader.Next() {
		_, shape := reader.Shape()
		if shape == nil {
			continue
		}

		code := strings.TrimSpace(reader.Attribute(codeIdx))
		name := strings.TrimSpace(reader.Attribute(nameIdx))
		if code == "" {
			continue
		}

		wkt := shapeToWKT(shape)
		if wkt == "" {
			log.Warn("geo: skipping district with unusable geometry", zap.String("code", code))
			continue
		}
		// The geometry column's input function parses EWKT directly.
		rows = append(rows, []any{code, name, "SRID=4326;" + wkt})
	}
	if len(rows) == 0 {
		return eris.Errorf("geo: no usable districts in %s", shpPath)
	}
	return replaceDistricts(ctx, pool, rows)
}

// replaceDistricts truncates the boundary table and COPYs the fresh set in
// one load.
func replaceDistricts(ctx context.Context, pool db.Pool, rows [][]any) error {
	if _, err := pool.Exec(ctx, `TRUNCATE market.districts`); err != nil {
		return eris.Wrap(err, "geo: truncate districts")
	}
	n, err := db.CopyInto(ctx, pool, "market", "districts", []string{"code", "name", "geom"}, rows, 0)
	if err != nil {
		return eris.Wrap(err, "geo: load districts")
	}

	zap.L().Info("district boundaries loaded", zap.Int64("districts", n))
	return nil
}

// downloadFile downloads a URL to a local file.
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

// extractZIP extracts a ZIP archive flat into the destination directory.
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

// findFileByExt finds the first file with the given extension in a directory.
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

// fieldIndex returns the index of a named field in the shapefile, or -1.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// shapeToWKT converts a shapefile Shape to WKT MULTIPOLYGON.
func shapeToWKT(s shp.Shape) string {
	if p, ok := s.(*shp.Polygon); ok {
		return polygonToWKT(p)
	}
	return ""
}

func polygonToWKT(p *shp.Polygon) string {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("MULTIPOLYGON(((")

	for i := int32(0); i < p.NumParts; i++ {
		if i > 0 {
			sb.WriteString(")),((")
		}
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		for j := start; j < end; j++ {
			if j > start {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "%f %f", p.Points[j].X, p.Points[j].Y)
		}
	}

	sb.WriteString(")))")
	return sb.String()
}
