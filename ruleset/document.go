package ruleset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedDocument indicates the ruleset document's top-level shape is not
// a mapping of provider objects.
var ErrMalformedDocument = errors.New("malformed ruleset document")

// ProviderConfig is the wire format of a single provider in a
// ClearURLs-compatible rules document.
type ProviderConfig struct {
	URLPattern        string   `json:"urlPattern"`
	CompleteProvider  bool     `json:"completeProvider"`
	Exceptions        []string `json:"exceptions"`
	Redirections      []string `json:"redirections"`
	Rules             []string `json:"rules"`
	ReferralMarketing []string `json:"referralMarketing"`
	RawRules          []string `json:"rawRules"`
}

// NamedProvider pairs a provider name with its wire config.
type NamedProvider struct {
	Name   string
	Config ProviderConfig
}

// Document is the parsed rules document with provider order preserved.
type Document struct {
	Providers []NamedProvider
}

// ParseDocument parses a rules document. The document is either a top-level
// object with a "providers" object, or a bare object mapping provider names to
// provider configs. Provider order follows the order of keys in the document,
// which encoding/json maps would lose, so the object is walked token by token.
func ParseDocument(data []byte) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	providersRaw := data
	if raw, ok := top["providers"]; ok {
		providersRaw = raw
	}

	providers, err := parseProviders(providersRaw)
	if err != nil {
		return nil, err
	}
	return &Document{Providers: providers}, nil
}

// parseProviders decodes an ordered object of provider name to provider config.
func parseProviders(raw []byte) ([]NamedProvider, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: providers must be an object", ErrMalformedDocument)
	}

	var providers []NamedProvider
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: provider name must be a string", ErrMalformedDocument)
		}

		var cfg ProviderConfig
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: provider %q: %v", ErrMalformedDocument, name, err)
		}
		providers = append(providers, NamedProvider{Name: name, Config: cfg})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return providers, nil
}
