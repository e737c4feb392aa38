package assetstore

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ProvenancePrefix starts every provenance tag.
const ProvenancePrefix = "viral-meme-"

// Default metadata constants.
const (
	DefaultSource          = "Meme Minter App"
	DefaultExternalURL     = "https://meme-minter.app"
	DefaultBackgroundColor = "000000"
)

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// MetadataDocument is the token metadata JSON referenced by tokenURI.
type MetadataDocument struct {
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Image           string      `json:"image"`
	Attributes      []Attribute `json:"attributes"`
	ExternalURL     string      `json:"external_url,omitempty"`
	BackgroundColor string      `json:"background_color,omitempty"`
}

// MetadataOptions overrides the fixed provenance fields.
type MetadataOptions struct {
	Source      string
	ExternalURL string
}

// CreateMetadataDocument builds the metadata for a token. The caller's
// attributes come first, followed by Source and Generation Date. attrs is
// never modified.
func CreateMetadataDocument(name, description, imageURL string, attrs []Attribute, now time.Time, opts MetadataOptions) MetadataDocument {
	source := opts.Source
	if source == "" {
		source = DefaultSource
	}
	external := opts.ExternalURL
	if external == "" {
		external = DefaultExternalURL
	}

	all := make([]Attribute, 0, len(attrs)+2)
	all = append(all, attrs...)
	all = append(all,
		Attribute{TraitType: "Source", Value: source},
		Attribute{TraitType: "Generation Date", Value: now.UTC().Format(time.DateOnly)},
	)

	return MetadataDocument{
		Name:            name,
		Description:     description,
		Image:           imageURL,
		Attributes:      all,
		ExternalURL:     external,
		BackgroundColor: DefaultBackgroundColor,
	}
}

// GenerateProvenanceTag returns viral-meme-<unixMillis>-<slug(name)>. Two
// calls in the same millisecond with the same name collide.
func GenerateProvenanceTag(name, description string, now time.Time) string {
	return fmt.Sprintf("%s%d-%s", ProvenancePrefix, now.UnixMilli(), Slug(name))
}

// Slug lowercases s and replaces each run of non-alphanumeric characters
// with a single hyphen.
func Slug(s string) string {
	var b strings.Builder
	inRun := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			inRun = false
			continue
		}
		if !inRun {
			b.WriteByte('-')
			inRun = true
		}
	}
	return b.String()
}
