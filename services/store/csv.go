package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"magnetar/models"
)

// csvHeader is the persisted row format shared by every bucket. Field order
// is part of the on-disk contract.
var csvHeader = []string{
	"content_id", "name", "magnet", "quality", "size", "source", "fileIdx",
	"filename", "provider", "seeders", "peers", "season", "episode",
	"imdb_id", "id_type",
}

// readAll reads and parses the backing file, creating it with the header row
// when missing. Rows that fail to parse are skipped, not fatal: one bad row
// must not take a whole bucket offline.
func (s *Store) readAll() ([]models.MagnetRecord, error) {
	if err := s.ensureFile(); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var records []models.MagnetRecord
	first := true
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == csvHeader[0] {
				continue
			}
		}
		rec, ok := parseRow(row)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ensureFile creates the backing file with a header row when absent.
func (s *Store) ensureFile() error {
	_, err := s.fs.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := s.fs.Create(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (s *Store) appendRows(records []models.MagnetRecord) error {
	if err := s.ensureFile(); err != nil {
		return err
	}
	f, err := s.fs.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, rec := range records {
		if err := w.Write(formatRow(rec)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func parseRow(row []string) (models.MagnetRecord, bool) {
	if len(row) < 3 || row[0] == "" || row[2] == "" {
		return models.MagnetRecord{}, false
	}
	field := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	rec := models.MagnetRecord{
		ContentID: field(0),
		Name:      field(1),
		Magnet:    field(2),
		Quality:   normalizeQuality(field(3)),
		Size:      field(4),
		Source:    field(5),
		FileIdx:   atoiOr(field(6), 0),
		Filename:  field(7),
		Provider:  field(8),
		Seeders:   atoiOr(field(9), 0),
		Peers:     atoiOr(field(10), 0),
		Season:    atoiOr(field(11), 0),
		Episode:   atoiOr(field(12), 0),
		IMDBID:    field(13),
		IDType:    field(14),
	}
	if rec.InfoHash() == "" {
		return models.MagnetRecord{}, false
	}
	return rec, true
}

func formatRow(rec models.MagnetRecord) []string {
	return []string{
		rec.ContentID,
		rec.Name,
		rec.Magnet,
		string(rec.Quality),
		rec.Size,
		rec.Source,
		strconv.Itoa(rec.FileIdx),
		rec.Filename,
		rec.Provider,
		strconv.Itoa(rec.Seeders),
		strconv.Itoa(rec.Peers),
		itoaOrEmpty(rec.Season),
		itoaOrEmpty(rec.Episode),
		rec.IMDBID,
		rec.IDType,
	}
}

func normalizeQuality(raw string) models.Quality {
	switch models.Quality(raw) {
	case models.Quality4K, models.Quality1080p, models.Quality720p,
		models.Quality480p, models.QualitySD:
		return models.Quality(raw)
	default:
		return models.QualityUnknown
	}
}

func atoiOr(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func itoaOrEmpty(v int) string {
	if v <= 0 {
		return ""
	}
	return strconv.Itoa(v)
}
