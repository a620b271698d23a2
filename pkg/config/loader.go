package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/inferline/inferline/pkg/plan"
)

// LoadDocument reads a plan document from disk. JSON files are
// decoded directly; CUE files and directories are evaluated first and
// exported as JSON, so plans may use CUE's templating and constraint
// features.
func LoadDocument(path string) (*plan.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat plan source: %w", err)
	}

	if info.IsDir() || strings.ToLower(filepath.Ext(path)) == ".cue" {
		return loadCUEDocument(path, info.IsDir())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan source: %w", err)
	}
	var doc plan.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return &doc, nil
}

// loadCUEDocument evaluates a CUE file or package directory and
// decodes the result through JSON into a plan document.
func loadCUEDocument(path string, isDir bool) (*plan.Document, error) {
	ctx := cuecontext.New()

	var val cue.Value
	if isDir {
		instances := load.Instances([]string{path}, nil)
		if len(instances) == 0 {
			return nil, fmt.Errorf("no CUE files in %s", path)
		}
		inst := instances[0]
		if inst.Err != nil {
			return nil, fmt.Errorf("load CUE package %s: %w", path, inst.Err)
		}
		val = ctx.BuildInstance(inst)
	} else {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read plan source: %w", err)
		}
		val = ctx.CompileString(string(content), cue.Filename(path))
	}
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("evaluate CUE plan %s: %w", path, err)
	}

	data, err := val.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("export CUE plan %s: %w", path, err)
	}
	var doc plan.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", path, err)
	}
	return &doc, nil
}
