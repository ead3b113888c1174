package policy

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/crypto"
)

// Rules is the plain-text policy handed to reviewers as authoritative.
type Rules struct {
	Text string
	Hash string
}

// LoadRules reads the reviewer policy text. A missing or unreadable file yields empty rules.
func LoadRules(path string) Rules {
	if path == "" {
		return Rules{Hash: crypto.DigestWithPrefix(nil)}
	}
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{Hash: crypto.DigestWithPrefix(nil)}
	}
	text := strings.TrimSpace(string(data))
	return Rules{Text: text, Hash: crypto.DigestWithPrefix([]byte(text))}
}

type LoadedToolPolicy struct {
	Policy ToolPolicy
	Hash   string
}

// LoadToolPolicy reads a YAML tool policy. An empty path or missing file yields DefaultToolPolicy.
func LoadToolPolicy(path string) (LoadedToolPolicy, error) {
	if path == "" {
		return defaultLoaded(), nil
	}
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultLoaded(), nil
	}
	if err != nil {
		return LoadedToolPolicy{}, err
	}

	p := DefaultToolPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return LoadedToolPolicy{}, err
	}
	if err := p.compile(); err != nil {
		return LoadedToolPolicy{}, err
	}
	return LoadedToolPolicy{Policy: p, Hash: crypto.DigestWithPrefix(data)}, nil
}

func defaultLoaded() LoadedToolPolicy {
	p := DefaultToolPolicy()
	raw, _ := yaml.Marshal(p)
	return LoadedToolPolicy{Policy: p, Hash: crypto.DigestWithPrefix(raw)}
}
