package composer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/stone/pkg/stone/jsonfile"
	"github.com/jamesainslie/stone/pkg/stone/types"
)

// ConfigFileName is the name of Composer's global configuration file.
const ConfigFileName = "config.json"

// DefaultHome returns Composer's home directory: $COMPOSER_HOME when set,
// otherwise ~/.composer.
func DefaultHome() (string, error) {
	if home := os.Getenv("COMPOSER_HOME"); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(userHome, ".composer"), nil
}

// RegistrationName is the key the mirror is registered under when the
// global config keeps its repositories as an object.
const RegistrationName = "stone"

// RegisterRepository adds the mirror at root as a "composer" repository in
// the global config under composerHome. Every other key of the config is kept
// as-is, and so is every existing repository entry, including disabling
// entries such as {"packagist.org": false}. It reports whether the config was
// changed; registering the same mirror twice is a no-op.
func RegisterRepository(composerHome, root string) (bool, error) {
	path := filepath.Join(composerHome, ConfigFileName)

	doc := make(map[string]json.RawMessage)
	if err := jsonfile.Read(path, &doc); err != nil && !errors.Is(err, jsonfile.ErrNotExist) {
		return false, fmt.Errorf("reading composer config: %w", err)
	}

	url := types.FileURL(root)
	entry, err := json.Marshal(map[string]string{"type": "composer", "url": url})
	if err != nil {
		return false, fmt.Errorf("encoding repository: %w", err)
	}

	raw, changed, err := addRepository(doc["repositories"], url, entry)
	if err != nil {
		return false, fmt.Errorf("reading composer config %s: %w", path, err)
	}
	if !changed {
		return false, nil
	}
	doc["repositories"] = raw

	if err := jsonfile.Write(path, doc); err != nil {
		return false, fmt.Errorf("writing composer config: %w", err)
	}
	return true, nil
}

// addRepository adds entry to "repositories" in whichever form Composer
// allows it was written in: a list, or an object keyed by repository name.
// Entries are carried over as raw JSON and object keys keep their order.
func addRepository(raw json.RawMessage, url string, entry json.RawMessage) (json.RawMessage, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		out, err := json.Marshal([]json.RawMessage{entry})
		return out, err == nil, err
	}

	switch trimmed[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, false, fmt.Errorf("repositories: %w", err)
		}
		for _, r := range list {
			if registers(r, url) {
				return nil, false, nil
			}
		}
		out, err := json.Marshal(append(list, entry))
		return out, err == nil, err

	case '{':
		keyed, err := decodeOrdered(trimmed)
		if err != nil {
			return nil, false, fmt.Errorf("repositories: %w", err)
		}
		for _, kv := range keyed {
			if registers(kv.value, url) {
				return nil, false, nil
			}
		}
		keyed = append(keyed, member{key: freeKey(keyed), value: entry})
		out, err := keyed.MarshalJSON()
		return out, err == nil, err
	}
	return nil, false, errors.New("repositories must be a list or an object")
}

// registers reports whether r is a composer repository pointing at url.
// Entries that are not objects never match.
func registers(r json.RawMessage, url string) bool {
	var repo struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(r, &repo); err != nil {
		return false
	}
	return repo.Type == "composer" && strings.TrimSuffix(repo.URL, "/") == url
}

func freeKey(keyed orderedObject) string {
	taken := make(map[string]bool, len(keyed))
	for _, kv := range keyed {
		taken[kv.key] = true
	}
	name := RegistrationName
	for i := 2; taken[name]; i++ {
		name = fmt.Sprintf("%s-%d", RegistrationName, i)
	}
	return name
}

type member struct {
	key   string
	value json.RawMessage
}

// orderedObject is a JSON object whose members keep their document order.
type orderedObject []member

func decodeOrdered(data []byte) (orderedObject, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var out orderedObject
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		out = append(out, member{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(kv.value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
