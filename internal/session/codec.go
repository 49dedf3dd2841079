package session

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Codec encodes documents for storage.
type Codec interface {
	Ext() string
	Marshal(doc Document) ([]byte, error)
	Unmarshal(data []byte) (Document, error)
}

// rawDocument distinguishes a missing tracks key from an empty list.
type rawDocument struct {
	Version  string           `json:"version" yaml:"version"`
	Tracks   *[]TrackSnapshot `json:"tracks" yaml:"tracks"`
	Metadata Metadata         `json:"metadata" yaml:"metadata"`
}

func (r rawDocument) document() (Document, error) {
	if r.Tracks == nil {
		return Document{}, fmt.Errorf("%w: invalid session format: missing 'tracks' key", ErrSessionIO)
	}
	return Document{Version: r.Version, Tracks: *r.Tracks, Metadata: r.Metadata}, nil
}

type jsonCodec struct{}

func (jsonCodec) Ext() string { return ".json" }

func (jsonCodec) Marshal(doc Document) ([]byte, error) {
	if doc.Tracks == nil {
		doc.Tracks = []TrackSnapshot{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode json: %v", ErrSessionIO, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte) (Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("%w: parse json: %v", ErrSessionIO, err)
	}
	return raw.document()
}

type yamlCodec struct{}

func (yamlCodec) Ext() string { return ".yaml" }

func (yamlCodec) Marshal(doc Document) ([]byte, error) {
	if doc.Tracks == nil {
		doc.Tracks = []TrackSnapshot{}
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode yaml: %v", ErrSessionIO, err)
	}
	return data, nil
}

func (yamlCodec) Unmarshal(data []byte) (Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("%w: parse yaml: %v", ErrSessionIO, err)
	}
	return raw.document()
}

var (
	JSON Codec = jsonCodec{}
	YAML Codec = yamlCodec{}
)

// CodecFor picks a codec from a file name's extension, JSON by default.
func CodecFor(name string) Codec {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return YAML
	}
	return JSON
}
