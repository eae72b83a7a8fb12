package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/PaesslerAG/jsonpath"

	"github.com/KaramelBytes/dataloom-agent/internal/analysis"
)

// autoPaths are tried, in order, when no JSONPath is configured and the
// document is an object.
var autoPaths = []string{"$.data", "$.records", "$.results", "$.items", "$.rows"}

type jsonParser struct{}

func (jsonParser) CanParse(filename string) bool { return hasSuffix(filename, ".json") }

func (jsonParser) Load(path string, opt Options) (*analysis.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	return parseJSON(data, filepath.Base(path), opt)
}

func parseJSON(data []byte, name string, opt Options) (*analysis.Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	order := keyOrder(data)

	if opt.JSONPath != "" {
		v, err := jsonpath.Get(opt.JSONPath, doc)
		if err != nil {
			return nil, fmt.Errorf("jsonpath %q: %w", opt.JSONPath, err)
		}
		return frameFromValue(v, name, order, opt)
	}
	if obj, ok := doc.(map[string]any); ok && !isColumnar(obj) {
		for _, p := range autoPaths {
			if v, err := jsonpath.Get(p, doc); err == nil {
				if _, isArr := v.([]any); isArr {
					return frameFromValue(v, name, order, opt)
				}
			}
		}
		if arr := largestArray(obj); arr != nil {
			return frameFromValue(arr, name, order, opt)
		}
	}
	return frameFromValue(doc, name, order, opt)
}

func frameFromValue(v any, name string, order map[string]int, opt Options) (*analysis.Frame, error) {
	switch t := v.(type) {
	case []any:
		return fromRecords(t, name, order, opt), nil
	case map[string]any:
		if isColumnar(t) {
			return fromColumns(t, name, order, opt), nil
		}
		return fromRecords([]any{t}, name, order, opt), nil
	}
	return nil, fmt.Errorf("json value of type %T is not tabular", v)
}

func fromRecords(recs []any, name string, order map[string]int, opt Options) *analysis.Frame {
	var header []string
	index := map[string]int{}
	for _, r := range recs {
		obj, ok := r.(map[string]any)
		if !ok {
			continue
		}
		for _, k := range sortedKeys(obj, order) {
			if _, seen := index[k]; !seen {
				index[k] = len(header)
				header = append(header, k)
			}
		}
	}
	if len(header) == 0 {
		header = []string{"value"}
		index["value"] = 0
	}
	f := &analysis.Frame{Name: name, Header: header}
	for _, r := range recs {
		if opt.MaxRows > 0 && f.NumRows() >= opt.MaxRows {
			f.Truncated = true
			break
		}
		row := make([]string, len(header))
		if obj, ok := r.(map[string]any); ok {
			for k, v := range obj {
				row[index[k]] = cell(v)
			}
		} else {
			row[0] = cell(r)
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

func fromColumns(obj map[string]any, name string, order map[string]int, opt Options) *analysis.Frame {
	header := sortedKeys(obj, order)
	f := &analysis.Frame{Name: name, Header: header}
	n := len(obj[header[0]].([]any))
	for i := 0; i < n; i++ {
		if opt.MaxRows > 0 && i >= opt.MaxRows {
			f.Truncated = true
			break
		}
		row := make([]string, len(header))
		for j, h := range header {
			row[j] = cell(obj[h].([]any)[i])
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

// isColumnar reports whether every value is a scalar array of equal length.
func isColumnar(obj map[string]any) bool {
	if len(obj) == 0 {
		return false
	}
	n := -1
	for _, v := range obj {
		arr, ok := v.([]any)
		if !ok || len(arr) == 0 {
			return false
		}
		if n >= 0 && len(arr) != n {
			return false
		}
		n = len(arr)
		for _, e := range arr {
			switch e.(type) {
			case map[string]any, []any:
				return false
			}
		}
	}
	return true
}

func largestArray(obj map[string]any) []any {
	var best []any
	for _, k := range sortedKeys(obj, nil) {
		if arr, ok := obj[k].([]any); ok && len(arr) > len(best) {
			best = arr
		}
	}
	return best
}

func sortedKeys(obj map[string]any, order map[string]int) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := order[keys[i]]
		oj, jok := order[keys[j]]
		if iok && jok && oi != oj {
			return oi < oj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// keyOrder records the first position of every object key in the document,
// so headers follow the order keys were written in rather than map order.
func keyOrder(data []byte) map[string]int {
	type level struct{ obj, expectKey bool }
	order := map[string]int{}
	var stack []level
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return order
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{':
				stack = append(stack, level{obj: true, expectKey: true})
				continue
			case '[':
				stack = append(stack, level{})
				continue
			default:
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
			}
			if n := len(stack); n > 0 && stack[n-1].obj {
				stack[n-1].expectKey = true
			}
			continue
		}
		n := len(stack)
		if n == 0 || !stack[n-1].obj {
			continue
		}
		if stack[n-1].expectKey {
			if k, ok := tok.(string); ok {
				if _, seen := order[k]; !seen {
					order[k] = len(order)
				}
			}
			stack[n-1].expectKey = false
		} else {
			stack[n-1].expectKey = true
		}
	}
}
