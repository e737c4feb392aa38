// Package source reads meme images from a local directory or a bucket URL.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"unicode"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/assetstore"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/pipeline"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/storage"
)

// DefaultDescription is attached to every asset loaded from a source.
const DefaultDescription = "A unique NFT representing a viral meme from the internet culture. " +
	"This digital collectible captures the essence of meme culture and internet humor. " +
	"Part of the Viral Memes Collection on SEI blockchain."

// NamePrefix starts every generated token name.
const NamePrefix = "Viral Meme NFT #"

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// IsImage reports whether key has a supported image extension.
func IsImage(key string) bool {
	return imageExts[strings.ToLower(path.Ext(key))]
}

// Source lists and loads image assets.
type Source struct {
	store  storage.Store
	logger *slog.Logger
}

// Open resolves location into a source. Locations containing "://" are bucket
// URLs; anything else must be an existing local directory.
func Open(ctx context.Context, location string) (*Source, error) {
	if location == "" {
		return nil, fmt.Errorf("asset location is empty")
	}

	var store storage.Store
	if strings.Contains(location, "://") {
		b, err := storage.Open(ctx, location, "")
		if err != nil {
			return nil, fmt.Errorf("open asset bucket: %w", err)
		}
		store = b
	} else {
		info, err := os.Stat(location)
		if err != nil {
			return nil, fmt.Errorf("asset directory %s: %w", location, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("asset location %s is not a directory", location)
		}
		b, err := storage.NewLocalStore(location, "")
		if err != nil {
			return nil, err
		}
		store = b
	}
	return New(store), nil
}

// New wraps an already opened store.
func New(store storage.Store) *Source {
	return &Source{store: store, logger: logging.Component("source")}
}

// List returns up to max image keys in lexical order. max <= 0 returns all.
func (s *Source) List(ctx context.Context, max int) ([]string, error) {
	keys, err := s.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	images := make([]string, 0, len(keys))
	for _, k := range keys {
		if IsImage(k) {
			images = append(images, k)
		}
	}
	sort.Strings(images)
	if max > 0 && len(images) > max {
		images = images[:max]
	}

	s.logger.Debug("listed assets", "found", len(keys), "images", len(images), "uri", s.store.URI(""))
	return images, nil
}

// Load reads key and derives its display metadata from the file name.
func (s *Source) Load(ctx context.Context, key string) (pipeline.Asset, error) {
	data, err := s.store.Read(ctx, key)
	if err != nil {
		return pipeline.Asset{}, fmt.Errorf("read asset %s: %w", key, err)
	}
	filename := path.Base(key)
	base := strings.TrimSuffix(filename, path.Ext(filename))

	return pipeline.Asset{
		Data:        data,
		Filename:    filename,
		Path:        key,
		Name:        NamePrefix + base,
		Description: DefaultDescription,
		Attributes: []assetstore.Attribute{
			{TraitType: "Meme Template", Value: templateName(base)},
		},
	}, nil
}

// LoadAll loads every key in order, stopping at the first error.
func (s *Source) LoadAll(ctx context.Context, keys []string) ([]pipeline.Asset, error) {
	assets := make([]pipeline.Asset, 0, len(keys))
	for _, k := range keys {
		a, err := s.Load(ctx, k)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, nil
}

// Close releases the underlying store.
func (s *Source) Close() error {
	return s.store.Close()
}

// templateName replaces every non-alphanumeric character with a space.
func templateName(base string) string {
	mapped := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return ' '
	}, base)
	return strings.TrimSpace(mapped)
}
