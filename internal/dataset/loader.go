package dataset

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
	"sort"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"

	"datalab/internal/sandbox"
)

var (
	// ErrNotFound is returned when the dataset file does not exist.
	ErrNotFound = errors.New("dataset not found")
	// ErrIsDirectory is returned when the dataset path names a directory.
	ErrIsDirectory = errors.New("dataset path is a directory")
	// ErrUnsupportedFormat is returned for extensions outside the supported set.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	// ErrParse is returned on malformed content.
	ErrParse = errors.New("dataset parse error")
)

var formatByExtension = map[string]Format{
	".csv":     FormatCSV,
	".txt":     FormatCSV,
	".tsv":     FormatTSV,
	".json":    FormatJSON,
	".ndjson":  FormatNDJSON,
	".parquet": FormatParquet,
	".pq":      FormatParquet,
	// Legacy BIFF .xls is deliberately absent: excelize reads OOXML
	// workbooks only, so the extension is rejected up front.
	".xlsx": FormatExcel,
}

// SupportedExtensions returns the sorted extension list, for error hints.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(formatByExtension))
	for ext := range formatByExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// DetectFormat maps a file extension onto the supported format set.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	format, ok := formatByExtension[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedFormat, ext, strings.Join(SupportedExtensions(), ", "))
	}
	return format, nil
}

// Load reads a workspace-relative dataset into memory. maxRows > 0 bounds
// the number of data rows read. The source file is never mutated.
func Load(ws *sandbox.Workspace, rel string, maxRows int) (*Dataset, error) {
	format, err := DetectFormat(rel)
	if err != nil {
		return nil, err
	}
	abs, err := ws.ResolveExisting(rel)
	if err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, rel)
		}
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrIsDirectory, rel)
	}

	var (
		headers []string
		rows    [][]string
	)
	switch format {
	case FormatCSV:
		headers, rows, err = readDelimited(abs, ',', maxRows)
	case FormatTSV:
		headers, rows, err = readDelimited(abs, '\t', maxRows)
	case FormatJSON, FormatNDJSON:
		headers, rows, err = readJSON(abs, maxRows)
	case FormatParquet:
		headers, rows, err = readParquet(abs, maxRows)
	case FormatExcel:
		headers, rows, err = readExcel(abs, maxRows)
	}
	if err != nil {
		return nil, err
	}

	ds := build(headers, rows)
	ds.Path = rel
	ds.Format = format
	ds.FileSize = info.Size()
	return ds, nil
}

func readDelimited(abs string, sep rune, maxRows int) ([]string, [][]string, error) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReader(f))
	reader.Comma = sep

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%w: empty file", ErrParse)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var rows [][]string
	for {
		if maxRows > 0 && len(rows) >= maxRows {
			break
		}
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.Reader enforces a consistent field count per record.
			return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		row := make([]string, len(rec))
		copy(row, rec)
		rows = append(rows, row)
	}
	return headers, rows, nil
}

// readJSON accepts an array of objects, falling back to newline-delimited
// objects when the array decode fails (mirrors the original loader's
// read_json try/except on lines=).
func readJSON(abs string, maxRows int) ([]string, [][]string, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, nil, fmt.Errorf("read dataset: %w", err)
	}

	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		records = records[:0]
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var rec map[string]any
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
			}
			records = append(records, rec)
			if maxRows > 0 && len(records) >= maxRows {
				break
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
	}
	if maxRows > 0 && len(records) > maxRows {
		records = records[:maxRows]
	}

	// An empty array is still a valid zero-row dataset; the profiler is
	// the layer that reports the lack of data.

	// Sorted key union keeps the schema deterministic across runs; Go map
	// iteration order would not be.
	keySet := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			keySet[k] = struct{}{}
		}
	}
	headers := make([]string, 0, len(keySet))
	for k := range keySet {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(headers))
		for j, key := range headers {
			row[j] = cellString(rec[key])
		}
		rows[i] = row
	}
	return headers, rows, nil
}

func readParquet(abs string, maxRows int) ([]string, [][]string, error) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[map[string]any](f)
	defer reader.Close()

	fields := reader.Schema().Fields()
	headers := make([]string, len(fields))
	for i, field := range fields {
		headers[i] = field.Name()
	}

	var rows [][]string
	buf := make([]map[string]any, 128)
	for {
		for i := range buf {
			buf[i] = make(map[string]any, len(headers))
		}
		n, err := reader.Read(buf)
		for _, rec := range buf[:n] {
			row := make([]string, len(headers))
			for j, key := range headers {
				row[j] = cellString(rec[key])
			}
			rows = append(rows, row)
			if maxRows > 0 && len(rows) >= maxRows {
				return headers, rows, nil
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
	}
	return headers, rows, nil
}

func readExcel(abs string, maxRows int) ([]string, [][]string, error) {
	xf, err := excelize.OpenFile(abs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	defer xf.Close()

	sheets := xf.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("%w: workbook has no sheets", ErrParse)
	}
	all, err := xf.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("%w: empty sheet", ErrParse)
	}

	headers := all[0]
	var rows [][]string
	for _, rec := range all[1:] {
		if maxRows > 0 && len(rows) >= maxRows {
			break
		}
		if len(rec) > len(headers) {
			return nil, nil, fmt.Errorf("%w: row has %d cells, header has %d", ErrParse, len(rec), len(headers))
		}
		// excelize trims trailing empty cells; pad them back as missing.
		row := make([]string, len(headers))
		copy(row, rec)
		rows = append(rows, row)
	}
	return headers, rows, nil
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
