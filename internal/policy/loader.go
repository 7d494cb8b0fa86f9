package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
)

// MappingErrorKind distinguishes why a mapping was rejected.
type MappingErrorKind string

const (
	KindNotFound       MappingErrorKind = "not_found"
	KindParse          MappingErrorKind = "parse"
	KindMissingSection MappingErrorKind = "missing_section"
	KindInvalidType    MappingErrorKind = "invalid_type"
	KindMissingProfile MappingErrorKind = "missing_profile"
	KindExists         MappingErrorKind = "exists"
)

// MappingError reports an unusable mapping file.
type MappingError struct {
	Kind MappingErrorKind
	Path string
	Msg  string
	Err  error
}

func newMappingError(kind MappingErrorKind, path, msg string, err error) *MappingError {
	return &MappingError{Kind: kind, Path: path, Msg: msg, Err: err}
}

func (e *MappingError) Error() string {
	msg := e.Msg
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return "media mapping: " + msg
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// IsMappingError reports whether err is a MappingError of the given kind.
func IsMappingError(err error, kind MappingErrorKind) bool {
	var me *MappingError
	return errors.As(err, &me) && me.Kind == kind
}

// LoadMapping reads and parses a mapping file.
//
// Expected format:
//
//	media:
//	  on:
//	    profile: cinema
//	    variant: night
//	  off:
//	    profile: music
//	    variant: normal
func LoadMapping(path string) (MediaMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return MediaMapping{}, newMappingError(KindNotFound, path, "mapping file not found", nil)
		}
		return MediaMapping{}, newMappingError(KindParse, path, "failed to read mapping", err)
	}

	m, err := ParseMapping(data)
	if err != nil {
		var me *MappingError
		if errors.As(err, &me) {
			me.Path = path
		}
		return MediaMapping{}, err
	}
	return m, nil
}

// LoadMappingWithFallback loads path and falls back to DefaultMapping when
// the file is missing or malformed. The fallback is logged, never fatal.
func LoadMappingWithFallback(path string, logger *zap.Logger) MediaMapping {
	m, err := LoadMapping(path)
	if err != nil {
		logger.Warn("media mapping unusable, falling back to built-in default",
			zap.String("path", path),
			zap.String("fallback", DefaultMapping.String()),
			zap.Error(err))
		return DefaultMapping
	}
	logger.Info("media mapping loaded",
		zap.String("path", path),
		zap.String("mapping", m.String()))
	return m
}

// ParseMapping parses mapping YAML.
func ParseMapping(data []byte) (MediaMapping, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return MediaMapping{}, newMappingError(KindParse, "", "failed to parse mapping YAML", err)
	}

	doc := &root
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return MediaMapping{}, newMappingError(KindMissingSection, "", "missing 'media' section", nil)
		}
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return MediaMapping{}, newMappingError(KindMissingSection, "", "missing 'media' section", nil)
	}

	media := lookup(doc, "media")
	if media == nil {
		return MediaMapping{}, newMappingError(KindMissingSection, "", "missing 'media' section", nil)
	}
	if media.Kind != yaml.MappingNode {
		return MediaMapping{}, newMappingError(KindInvalidType, "", "'media' section must be a mapping", nil)
	}

	// on/off are YAML 1.1 booleans; accept every spelling of them.
	branches := make(map[string]*yaml.Node, 2)
	for i := 0; i+1 < len(media.Content); i += 2 {
		switch strings.ToLower(media.Content[i].Value) {
		case "on", "true", "yes":
			branches["on"] = media.Content[i+1]
		case "off", "false", "no":
			branches["off"] = media.Content[i+1]
		}
	}

	on, err := parseSide(branches, "on")
	if err != nil {
		return MediaMapping{}, err
	}
	off, err := parseSide(branches, "off")
	if err != nil {
		return MediaMapping{}, err
	}
	return NewMediaMapping(on, off)
}

func parseSide(branches map[string]*yaml.Node, key string) (domain.ProfileSelection, error) {
	section, ok := branches[key]
	if !ok {
		return domain.ProfileSelection{}, newMappingError(KindMissingSection, "",
			fmt.Sprintf("missing required section '%s'", key), nil)
	}
	if section.Kind != yaml.MappingNode {
		return domain.ProfileSelection{}, newMappingError(KindInvalidType, "",
			fmt.Sprintf("invalid '%s' section (must be a mapping)", key), nil)
	}

	profile := lookup(section, "profile")
	if profile == nil {
		return domain.ProfileSelection{}, newMappingError(KindMissingProfile, "",
			fmt.Sprintf("missing 'profile' in '%s' section", key), nil)
	}
	if !isString(profile) {
		return domain.ProfileSelection{}, newMappingError(KindInvalidType, "",
			fmt.Sprintf("'profile' in '%s' section must be a string", key), nil)
	}
	if profile.Value == "" {
		return domain.ProfileSelection{}, newMappingError(KindMissingProfile, "",
			fmt.Sprintf("empty 'profile' in '%s' section", key), nil)
	}

	sel := domain.ProfileSelection{Profile: profile.Value}
	if variant := lookup(section, "variant"); variant != nil && variant.ShortTag() != "!!null" {
		if !isString(variant) {
			return domain.ProfileSelection{}, newMappingError(KindInvalidType, "",
				fmt.Sprintf("'variant' in '%s' section must be a string", key), nil)
		}
		sel.Variant = variant.Value
	}
	return sel, nil
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func isString(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!str"
}
