// Package targets reads monitoring targets from YAML files.
package targets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pingbase/pingbase/internal/domain"
)

type fileTarget struct {
	ID          string   `yaml:"id"`
	UserID      string   `yaml:"user_id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Exclusions  []string `yaml:"exclusions"`
	Subreddits  []string `yaml:"subreddits"`
}

type file struct {
	Targets []fileTarget `yaml:"targets"`
}

// Load reads a targets file from path.
func Load(path string) ([]domain.Target, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading targets file: %w", err)
	}
	return Parse(bytes.NewReader(b))
}

// Parse decodes a targets document. Unknown keys are rejected so a typo
// does not silently drop a field.
func Parse(r io.Reader) ([]domain.Target, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing targets: %w", err)
	}

	out := make([]domain.Target, 0, len(f.Targets))
	for i, ft := range f.Targets {
		t := domain.Target{
			ID:          strings.TrimSpace(ft.ID),
			UserID:      strings.TrimSpace(ft.UserID),
			Name:        strings.TrimSpace(ft.Name),
			Description: strings.TrimSpace(ft.Description),
			Keywords:    ft.Keywords,
			Exclusions:  ft.Exclusions,
			Subreddits:  ft.Subreddits,
		}
		if t.Name == "" {
			return nil, fmt.Errorf("target %d: name is required", i+1)
		}
		if t.UserID == "" {
			return nil, fmt.Errorf("target %q: user_id is required", t.Name)
		}
		out = append(out, t)
	}
	return out, nil
}

// Saver persists one target.
type Saver interface {
	SaveTarget(ctx context.Context, t domain.Target) (domain.Target, error)
}

// Import saves every target and returns them as stored.
func Import(ctx context.Context, s Saver, ts []domain.Target) ([]domain.Target, error) {
	saved := make([]domain.Target, 0, len(ts))
	for _, t := range ts {
		st, err := s.SaveTarget(ctx, t)
		if err != nil {
			return saved, fmt.Errorf("importing %q: %w", t.Name, err)
		}
		saved = append(saved, st)
	}
	return saved, nil
}
