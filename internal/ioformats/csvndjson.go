// Package ioformats reads batch request lists and writes NDJSON output.
package ioformats

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"forge-endpointify/internal/models"
)

var ErrNoRequests = errors.New("ioformats: no urls found")

type Format int

const (
	FormatAuto Format = iota
	FormatCSV
	FormatNDJSON
)

// FormatFor picks a format from a file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".ndjson", ".jsonl":
		return FormatNDJSON
	}
	return FormatAuto
}

// ReadRequests reads requests from a CSV (header with a "url" column and
// optional "force_live", "timeout_ms" columns) or NDJSON file.
func ReadRequests(path string) ([]models.ExtractRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, FormatFor(path))
}

// Parse decodes data in the given format. FormatAuto tries CSV first, then
// NDJSON.
func Parse(data []byte, format Format) ([]models.ExtractRequest, error) {
	switch format {
	case FormatCSV:
		return readCSV(bytes.NewReader(data))
	case FormatNDJSON:
		return readNDJSON(bytes.NewReader(data))
	default:
		if reqs, err := readCSV(bytes.NewReader(data)); err == nil && len(reqs) > 0 {
			return reqs, nil
		}
		return readNDJSON(bytes.NewReader(data))
	}
}

func readCSV(r io.Reader) ([]models.ExtractRequest, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("ioformats: empty csv")
	}

	cols := map[string]int{"url": -1, "force_live": -1, "timeout_ms": -1}
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, ok := cols[key]; ok && cols[key] == -1 {
			cols[key] = i
		}
	}
	if cols["url"] == -1 {
		return nil, errors.New("ioformats: csv must contain a 'url' header column")
	}

	cell := func(row []string, name string) string {
		i := cols[name]
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []models.ExtractRequest
	for n, row := range rows[1:] {
		u := cell(row, "url")
		if u == "" {
			continue
		}
		req := models.ExtractRequest{URL: u}
		if v := cell(row, "force_live"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("ioformats: row %d: force_live: %w", n+2, err)
			}
			req.Options.ForceLive = b
		}
		if v := cell(row, "timeout_ms"); v != "" {
			ms, err := strconv.Atoi(v)
			if err != nil || ms <= 0 {
				return nil, fmt.Errorf("ioformats: row %d: timeout_ms must be a positive integer", n+2)
			}
			req.Options.TimeoutMs = ms
		}
		out = append(out, req)
	}
	return out, nil
}

func readNDJSON(r io.Reader) ([]models.ExtractRequest, error) {
	var out []models.ExtractRequest
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		// {"url": "...", "options": {...}} or a bare url
		if strings.HasPrefix(line, "{") {
			var req models.ExtractRequest
			if err := json.Unmarshal([]byte(line), &req); err == nil && req.URL != "" {
				out = append(out, req)
				continue
			}
		}
		out = append(out, models.ExtractRequest{URL: line})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoRequests
	}
	return out, nil
}

// WriteNDJSON writes items as one JSON document per line.
func WriteNDJSON[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}
