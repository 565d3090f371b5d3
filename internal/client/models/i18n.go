// Package models defines the ticketing data model mirrored on the device:
// events, check-in lists, products, orders, positions, check-ins, questions,
// denylists and the redemption request/response values.
package models

import (
	"encoding/json"
	"sort"

	"golang.org/x/text/language"
)

// MultiLingualString maps locale codes ("en", "de", "pt-BR") to text.
// Plain JSON strings decode into the "en" entry.
type MultiLingualString map[string]string

func (m *MultiLingualString) UnmarshalJSON(b []byte) error {
	var plain string
	if err := json.Unmarshal(b, &plain); err == nil {
		*m = MultiLingualString{"en": plain}
		return nil
	}
	var values map[string]string
	if err := json.Unmarshal(b, &values); err != nil {
		return err
	}
	*m = values
	return nil
}

// Localized returns the representation best matching tag. It falls back to
// English and then to the alphabetically first locale.
func (m MultiLingualString) Localized(tag language.Tag) string {
	if len(m) == 0 {
		return ""
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]language.Tag, 0, len(keys))
	tagKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		parsed, err := language.Parse(k)
		if err != nil {
			continue
		}
		tags = append(tags, parsed)
		tagKeys = append(tagKeys, k)
	}

	if len(tags) > 0 {
		_, idx, conf := language.NewMatcher(tags).Match(tag)
		if conf != language.No {
			return m[tagKeys[idx]]
		}
	}
	if v, ok := m["en"]; ok {
		return v
	}
	return m[keys[0]]
}
