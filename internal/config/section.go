package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Section is a named mapping of string keys to string values.
type Section struct {
	name   string
	values map[string]string
}

func newSection(name string) *Section {
	return &Section{name: name, values: make(map[string]string)}
}

// Name returns the section name.
func (s *Section) Name() string {
	return s.name
}

// Get returns the raw value of key.
func (s *Section) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is set.
func (s *Section) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Set stores value under key.
func (s *Section) Set(key, value string) {
	s.values[key] = value
}

// SetDefault stores value under key unless key is already set.
func (s *Section) SetDefault(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.values[key] = value
	}
}

// Delete removes key.
func (s *Section) Delete(key string) {
	delete(s.values, key)
}

// Keys returns all keys in sorted order.
func (s *Section) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the value of key. A missing key is set to def.
func (s *Section) String(key, def string) string {
	v, ok := s.values[key]
	if !ok {
		s.values[key] = def
		return def
	}
	return v
}

// Int returns the value of key as an integer. A missing key is set to def.
func (s *Section) Int(key string, def int) (int, error) {
	v, ok := s.values[key]
	if !ok {
		s.values[key] = strconv.Itoa(def)
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("[%s] %s: %q is not an integer", s.name, key, v)
	}
	return n, nil
}

// Bool returns the value of key as a boolean. Accepts 1/0, yes/no,
// true/false and on/off. A missing key is set to def.
func (s *Section) Bool(key string, def bool) (bool, error) {
	v, ok := s.values[key]
	if !ok {
		s.values[key] = strconv.FormatBool(def)
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "yes", "true", "on":
		return true, nil
	case "0", "no", "false", "off":
		return false, nil
	}
	return def, fmt.Errorf("[%s] %s: %q is not a boolean", s.name, key, v)
}
