package catalog

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/ddokjang/plan-service/internal/matching"
)

// ImportResult reports the outcome of an XLSX snapshot import.
type ImportResult struct {
	TotalRows    int
	ImportedRows int
	SkippedRows  int
	Products     int
	Errors       []string
}

// Expected column order in a snapshot sheet. The first row is a header.
const xlsxColumns = "store_id, product_name, brand, size, category, price, observed_at"

// ImportSnapshotsXLSX loads price snapshots from an XLSX workbook into the
// catalog. Products referenced by name are created on first sight, keyed by
// their normalized name plus brand and size.
func (r *Repository) ImportSnapshotsXLSX(ctx context.Context, content []byte) (*ImportResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	result := &ImportResult{}
	seenProducts := make(map[string]bool)
	batch := &pgx.Batch{}
	now := time.Now()

	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		result.TotalRows++

		if len(row) < 6 || strings.TrimSpace(row[0]) == "" || strings.TrimSpace(row[1]) == "" {
			result.SkippedRows++
			continue
		}

		storeID := strings.TrimSpace(row[0])
		name := strings.TrimSpace(row[1])
		brand := strings.TrimSpace(cell(row, 2))
		size := strings.TrimSpace(cell(row, 3))
		category := strings.TrimSpace(cell(row, 4))

		price, err := parsePrice(cell(row, 5))
		if err != nil {
			result.SkippedRows++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}

		observedAt := now
		if raw := strings.TrimSpace(cell(row, 6)); raw != "" {
			if t, err := parseObservedAt(raw); err == nil {
				observedAt = t
			}
		}

		normalized := matching.Normalize(name)
		productKey := productKeyFor(normalized, brand, size)

		if !seenProducts[productKey] {
			seenProducts[productKey] = true
			batch.Queue(`
				INSERT INTO products (product_key, normalized_name, display_name, brand, size_display, category, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
				ON CONFLICT (product_key) DO UPDATE SET
					display_name = EXCLUDED.display_name,
					category = CASE WHEN EXCLUDED.category <> '' THEN EXCLUDED.category ELSE products.category END,
					updated_at = EXCLUDED.updated_at
			`, productKey, normalized, name, brand, size, category, now)
		}

		batch.Queue(`
			INSERT INTO price_snapshots (store_id, product_key, price, observed_at, source)
			VALUES ($1, $2, $3, $4, 'xlsx')
			ON CONFLICT (store_id, product_key, observed_at) DO NOTHING
		`, storeID, productKey, price, observedAt)

		result.ImportedRows++
	}
	result.Products = len(seenProducts)

	if batch.Len() == 0 {
		return result, nil
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return nil, fmt.Errorf("import batch statement %d: %w", i, err)
		}
	}

	log.Info().
		Str("component", "catalog_import").
		Int("total", result.TotalRows).
		Int("imported", result.ImportedRows).
		Int("skipped", result.SkippedRows).
		Int("products", result.Products).
		Msg("xlsx snapshot import finished")

	return result, nil
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

func productKeyFor(normalizedName, brand, size string) string {
	parts := []string{normalizedName}
	if brand != "" {
		parts = append(parts, matching.Normalize(brand))
	}
	if size != "" {
		parts = append(parts, matching.Normalize(size))
	}
	return strings.Join(parts, ":")
}

func parsePrice(raw string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return 0, fmt.Errorf("unparseable price %q", raw)
	}
	price, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable price %q", raw)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price %q", raw)
	}
	return price, nil
}

func parseObservedAt(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}
