package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"coauthor/internal/event"
)

// NA marks an unset example or prompt.
const NA = "na"

// AccessCode is the session configuration bound to one access code.
type AccessCode struct {
	Code string `json:"access_code"`

	Domain  string `json:"domain"`
	Example string `json:"example"`
	Prompt  string `json:"prompt"`

	SessionLength int `json:"session_length"` // seconds; 0 means untimed

	N                int      `json:"n"`
	MaxTokens        int      `json:"max_tokens"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	PresencePenalty  float64  `json:"presence_penalty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	Stop             []string `json:"stop"`
	Engine           string   `json:"engine"`

	AdditionalData string `json:"additional_data,omitempty"`
}

// DefaultAccessCode returns the settings used for any column an access code
// file leaves out.
func DefaultAccessCode(code string) AccessCode {
	return AccessCode{
		Code:             code,
		Domain:           "demo",
		Example:          NA,
		Prompt:           NA,
		Engine:           "text-davinci-003",
		N:                5,
		MaxTokens:        50,
		Temperature:      0.95,
		TopP:             1,
		PresencePenalty:  0.5,
		FrequencyPenalty: 0.5,
		Stop:             []string{"."},
	}
}

// Controls converts the access code's generation settings.
func (a AccessCode) Controls() event.ControlParams {
	return event.ControlParams{
		N:                a.N,
		MaxTokens:        a.MaxTokens,
		Temperature:      a.Temperature,
		TopP:             a.TopP,
		PresencePenalty:  a.PresencePenalty,
		FrequencyPenalty: a.FrequencyPenalty,
		Stop:             append([]string(nil), a.Stop...),
		Engine:           a.Engine,
	}
}

// PersistentSuggestions reports whether a selection keeps the suggestion
// list available for reopening.
func (a AccessCode) PersistentSuggestions() bool { return a.Domain == "metaphor" }

// Catalog is everything read from the config directory.
type Catalog struct {
	AccessCodes map[string]AccessCode
	Prompts     map[string]string
	Examples    map[string]string
	Blocklist   map[string]bool
}

// LoadCatalog reads access codes, prompts, examples and the optional
// blocklist from dir. A missing dir is an error; missing optional files are
// not.
func LoadCatalog(dir string) (*Catalog, error) {
	codes, err := LoadAccessCodes(dir)
	if err != nil {
		return nil, err
	}
	prompts, err := LoadPrompts(filepath.Join(dir, "prompts.tsv"))
	if err != nil {
		return nil, err
	}
	examples, err := LoadExamples(filepath.Join(dir, "examples"))
	if err != nil {
		return nil, err
	}
	blocklist, err := LoadBlocklist(filepath.Join(dir, "blocklist.txt"))
	if err != nil {
		return nil, err
	}
	return &Catalog{AccessCodes: codes, Prompts: prompts, Examples: examples, Blocklist: blocklist}, nil
}

// LoadAccessCodes reads every *access_code*.csv file in dir. Later rows
// override earlier ones with the same code.
func LoadAccessCodes(dir string) (map[string]AccessCode, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read config dir: %w", err)
	}
	codes := make(map[string]AccessCode)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.Contains(name, "access_code") || !strings.HasSuffix(name, "csv") {
			continue
		}
		if err := readAccessCodeFile(filepath.Join(dir, name), codes); err != nil {
			return nil, err
		}
	}
	return codes, nil
}

func readAccessCodeFile(path string, into map[string]AccessCode) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open access codes: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: read header: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	if _, ok := col["access_code"]; !ok {
		return fmt.Errorf("%s: missing access_code column", path)
	}

	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		get := func(name string) (string, bool) {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return "", false
			}
			return rec[i], true
		}
		code, _ := get("access_code")
		ac, err := parseAccessCode(code, get)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		into[code] = ac
	}
}

func parseAccessCode(code string, get func(string) (string, bool)) (AccessCode, error) {
	ac := DefaultAccessCode(code)
	if v, ok := get("domain"); ok {
		ac.Domain = v
	}
	if v, ok := get("example"); ok {
		ac.Example = v
	}
	if v, ok := get("prompt"); ok {
		ac.Prompt = v
	}
	if v, ok := get("engine"); ok {
		ac.Engine = v
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"session_length", &ac.SessionLength},
		{"n", &ac.N},
		{"max_tokens", &ac.MaxTokens},
	}
	for _, f := range ints {
		if v, ok := get(f.name); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return ac, fmt.Errorf("%s: %w", f.name, err)
			}
			*f.dst = n
		}
	}
	floats := []struct {
		name string
		dst  *float64
	}{
		{"temperature", &ac.Temperature},
		{"top_p", &ac.TopP},
		{"presence_penalty", &ac.PresencePenalty},
		{"frequency_penalty", &ac.FrequencyPenalty},
	}
	for _, f := range floats {
		if v, ok := get(f.name); ok && strings.TrimSpace(v) != "" {
			x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return ac, fmt.Errorf("%s: %w", f.name, err)
			}
			*f.dst = x
		}
	}
	if v, ok := get("stop"); ok {
		ac.Stop = nil
		for _, tok := range strings.Split(v, "|") {
			ac.Stop = append(ac.Stop, unescapeNewlines(tok))
		}
	}
	if v, ok := get("additional_data"); ok && v != NA {
		ac.AdditionalData = v
	}
	return ac, nil
}

// LoadPrompts reads a tab-separated file of (id, code, text) rows. Rows
// with any other column count are ignored. The result always maps "na" to
// the empty prompt.
func LoadPrompts(path string) (map[string]string, error) {
	prompts := map[string]string{NA: ""}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return prompts, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open prompts: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return prompts, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read prompts: %w", err)
		}
		if len(rec) != 3 {
			continue
		}
		prompts[rec[1]] = unescapeNewlines(rec[2])
	}
}

// LoadExamples reads every .txt file in dir, keyed by file name without the
// extension. Each text gets a trailing space so a continuation starts on a
// word boundary.
func LoadExamples(dir string) (map[string]string, error) {
	examples := map[string]string{NA: ""}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return examples, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read examples: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read example %s: %w", e.Name(), err)
		}
		examples[strings.TrimSuffix(e.Name(), ".txt")] = unescapeNewlines(string(b)) + " "
	}
	return examples, nil
}

// LoadBlocklist reads one lowercase word per line.
func LoadBlocklist(path string) (map[string]bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read blocklist: %w", err)
	}
	words := make(map[string]bool)
	for _, line := range strings.Split(string(b), "\n") {
		if w := strings.ToLower(strings.TrimSpace(line)); w != "" {
			words[w] = true
		}
	}
	return words, nil
}

func unescapeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
