package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/fyrsmithlabs/finplan/internal/jobs"
)

const maxInputSize = 1024 * 1024 // 1MB

// readInput loads projection data from a JSON or TOML file ("-" reads JSON
// from stdin) and returns it as JSON.
//
// TOML documents are tables, so a PROJECTION_BATCH file lists its entries
// under [[items]].
func readInput(stdin io.Reader, path string, typ jobs.Type) (json.RawMessage, error) {
	var (
		content []byte
		err     error
	)
	if path == "-" {
		content, err = io.ReadAll(io.LimitReader(stdin, maxInputSize+1))
	} else {
		content, err = readFileLimited(path)
	}
	if err != nil {
		return nil, err
	}
	if len(content) > maxInputSize {
		return nil, fmt.Errorf("input too large (max %d bytes)", maxInputSize)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil, errors.New("input is empty")
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return tomlToJSON(content, typ)
	}
	if !json.Valid(content) {
		return nil, fmt.Errorf("%s is not valid JSON", displayName(path))
	}
	return json.RawMessage(content), nil
}

func readFileLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxInputSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return content, nil
}

func tomlToJSON(content []byte, typ jobs.Type) (json.RawMessage, error) {
	var doc map[string]any
	if _, err := toml.Decode(string(content), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	var value any = doc
	if typ == jobs.TypeBatch {
		items, ok := doc["items"]
		if !ok {
			return nil, errors.New("batch TOML input needs an [[items]] array")
		}
		value = items
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to convert TOML to JSON: %w", err)
	}
	return data, nil
}

func displayName(path string) string {
	if path == "-" {
		return "stdin"
	}
	return path
}
