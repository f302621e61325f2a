package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFragments читает файл фрагментов: YAML-список или JSON-массив
// (JSON — подмножество YAML, отдельный парсер не нужен).
func LoadFragments(path string) ([]Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fragments: %w", err)
	}
	var frags []Fragment
	if err := yaml.Unmarshal(data, &frags); err != nil {
		return nil, fmt.Errorf("parse fragments %s: %w", path, err)
	}
	seen := make(map[string]bool, len(frags))
	for i, f := range frags {
		if strings.TrimSpace(f.Content) == "" {
			return nil, fmt.Errorf("fragment #%d: content is empty", i)
		}
		if f.ID == "" {
			f.ID = fmt.Sprintf("frag-%03d", i+1)
			frags[i] = f
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("fragment %q: duplicate id", f.ID)
		}
		seen[f.ID] = true
	}
	return frags, nil
}

// Reindex загружает файл целиком в индекс и возвращает число фрагментов.
func Reindex(ctx context.Context, x *Index, path string) (int, error) {
	frags, err := LoadFragments(path)
	if err != nil {
		return 0, err
	}
	if err := x.AddFragments(ctx, frags); err != nil {
		return 0, err
	}
	return len(frags), nil
}

// EnsureLoaded наполняет пустой индекс из файла; отсутствие файла не ошибка.
func EnsureLoaded(ctx context.Context, x *Index, path string) error {
	if x.Count() > 0 || path == "" {
		return nil
	}
	n, err := Reindex(ctx, x, path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("knowledge: fragments file not found, index stays empty", "path", path)
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("knowledge: manual fragments indexed", "count", n, "path", path)
	return nil
}
