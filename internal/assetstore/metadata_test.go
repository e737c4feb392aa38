package assetstore

import (
	"reflect"
	"testing"
	"time"
)

func TestCreateMetadataDocument(t *testing.T) {
	attrs := []Attribute{{TraitType: "Meme Template", Value: "drake"}}
	orig := append([]Attribute(nil), attrs...)
	now := time.Date(2025, 7, 4, 23, 30, 0, 0, time.UTC)

	doc := CreateMetadataDocument("Viral Meme NFT #drake", "desc", "ipfs://img", attrs, now, MetadataOptions{})

	want := []Attribute{
		{TraitType: "Meme Template", Value: "drake"},
		{TraitType: "Source", Value: DefaultSource},
		{TraitType: "Generation Date", Value: "2025-07-04"},
	}
	if !reflect.DeepEqual(doc.Attributes, want) {
		t.Errorf("attributes = %+v, want %+v", doc.Attributes, want)
	}
	if !reflect.DeepEqual(attrs, orig) {
		t.Error("input attributes were modified")
	}
	if doc.BackgroundColor != "000000" || doc.ExternalURL != DefaultExternalURL {
		t.Errorf("unexpected fixed fields: %+v", doc)
	}

	// Appending to the result must not leak into a caller slice with spare capacity.
	spare := make([]Attribute, 1, 4)
	spare[0] = attrs[0]
	_ = CreateMetadataDocument("n", "d", "i", spare, now, MetadataOptions{})
	if len(spare[:cap(spare)][1].TraitType) != 0 {
		t.Error("wrote into caller's backing array")
	}
}

func TestCreateMetadataDocumentOverrides(t *testing.T) {
	doc := CreateMetadataDocument("n", "d", "i", nil, time.Now(), MetadataOptions{Source: "Reddit Memes", ExternalURL: "https://viral-memes-collection.com"})
	if doc.Attributes[0].Value != "Reddit Memes" || doc.ExternalURL != "https://viral-memes-collection.com" {
		t.Errorf("overrides not applied: %+v", doc)
	}
}

func TestGenerateProvenanceTag(t *testing.T) {
	now := time.UnixMilli(1717171717171)
	tests := []struct{ name, want string }{
		{"Drake Hotline", "viral-meme-1717171717171-drake-hotline"},
		{"Wait... WHAT?!", "viral-meme-1717171717171-wait-what-"},
		{"cat_2024", "viral-meme-1717171717171-cat-2024"},
		{"", "viral-meme-1717171717171-"},
	}
	for _, tt := range tests {
		if got := GenerateProvenanceTag(tt.name, "ignored", now); got != tt.want {
			t.Errorf("GenerateProvenanceTag(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSlugNonASCII(t *testing.T) {
	if got := Slug("café  ünïcode"); got != "caf-n-code" {
		t.Errorf("Slug = %q", got)
	}
}
