// Package config holds the logger's persisted settings: a fixed set of
// sections and typed keys mirrored to an ini file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/ini.v1"
)

// Section names.
const (
	SectionLogging = "Logging"
	SectionAir     = "Air"
	SectionSoil    = "Soil"
)

// Key names.
const (
	KeyLoggerID  = "LoggerId"
	KeyPairingID = "PairingId"
	KeyActive    = "Active"
	KeySocketURL = "SocketUrl"
	KeyRestURL   = "RestUrl"
	KeyMinHumid  = "MinHumid"
	KeyMaxHumid  = "MaxHumid"
	KeyMinTemp   = "MinTemp"
	KeyMaxTemp   = "MaxTemp"
	KeyMoist     = "Moist"
	KeyDry       = "Dry"
)

// DefaultPath is used when no path is given on the command line.
const DefaultPath = "./config.ini"

// Snapshot is a section -> key -> typed value view of the configuration.
// Values are string, bool or float64, as declared by the defaults.
type Snapshot map[string]map[string]any

type option struct {
	key string
	def any
}

type section struct {
	name    string
	options []option
}

// defaults declares every known section and key, in file order. The type of
// each default decides how the stored text is parsed.
var defaults = []section{
	{SectionLogging, []option{
		{KeyLoggerID, ""},
		{KeyPairingID, ""},
		{KeyActive, false},
		{KeySocketURL, "tcp://20.4.59.10:9093"},
		{KeyRestURL, "http://20.4.59.10:9092"},
	}},
	{SectionAir, []option{
		{KeyMinHumid, 1.0},
		{KeyMaxHumid, 1.0},
		{KeyMinTemp, 1.0},
		{KeyMaxTemp, 1.0},
	}},
	{SectionSoil, []option{
		{KeyMoist, 1.2},
		{KeyDry, 3.3},
	}},
}

func lookup(sec, key string) (option, bool) {
	for _, s := range defaults {
		if s.name != sec {
			continue
		}
		for _, o := range s.options {
			if o.key == key {
				return o, true
			}
		}
	}
	return option{}, false
}

func knownSection(name string) bool {
	for _, s := range defaults {
		if s.name == name {
			return true
		}
	}
	return false
}

// Store is the in-memory configuration, safe for concurrent use. Every
// mutation is expected to be followed by Save.
type Store struct {
	mu   sync.RWMutex
	path string
	file *ini.File
}

// Defaults returns a store holding only the default values. It is not
// backed by a file until Save is called.
func Defaults(path string) *Store {
	f := ini.Empty()
	for _, s := range defaults {
		sec := f.Section(s.name)
		for _, o := range s.options {
			sec.Key(o.key).SetValue(formatDefault(o.def))
		}
	}
	return &Store{path: path, file: f}
}

// Load builds the defaults and overlays the file at path. When the file does
// not exist it is created from the defaults. Unknown sections and keys read
// from the file are pruned in memory.
func Load(path string) (*Store, error) {
	s := Defaults(path)

	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.Save(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	if err := s.file.Append(path); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	s.Clean()
	return s, nil
}

// Path returns the file the store saves to.
func (s *Store) Path() string {
	return s.path
}

// Save prunes unknown keys and writes the file atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanLocked()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".config-*.ini")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := s.file.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace config %s: %w", s.path, err)
	}
	return nil
}

// Clean removes every section and key that has no default.
func (s *Store) Clean() {
	s.mu.Lock()
	s.cleanLocked()
	s.mu.Unlock()
}

func (s *Store) cleanLocked() {
	for _, name := range s.file.SectionStrings() {
		sec := s.file.Section(name)
		if name != ini.DefaultSection && knownSection(name) {
			for _, key := range sec.KeyStrings() {
				if _, ok := lookup(name, key); !ok {
					sec.DeleteKey(key)
				}
			}
			continue
		}
		if name == ini.DefaultSection {
			// The default section always exists; emptying it keeps it out of the file.
			for _, key := range sec.KeyStrings() {
				sec.DeleteKey(key)
			}
			continue
		}
		s.file.DeleteSection(name)
	}
}

// Snapshot returns every known key with its typed value.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(Snapshot, len(defaults))
	for _, sec := range defaults {
		m := make(map[string]any, len(sec.options))
		for _, o := range sec.options {
			m[o.key] = s.valueLocked(sec.name, o)
		}
		out[sec.name] = m
	}
	return out
}

// ReadOnly reports whether Merge leaves the key untouched. The logger id is
// the device identity; only Set can write it.
func ReadOnly(sec, key string) bool {
	return sec == SectionLogging && key == KeyLoggerID
}

// Merge applies values on top of the current configuration. Known keys are
// type-checked against their defaults; a value that does not parse is
// rejected and reported while the remaining keys are still applied.
// Read-only keys are skipped. Unknown keys are kept until the next Clean or
// Save.
func (s *Store) Merge(values Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for secName, keys := range values {
		for key, v := range keys {
			if ReadOnly(secName, key) {
				continue
			}
			o, ok := lookup(secName, key)
			if !ok {
				s.file.Section(secName).Key(key).SetValue(fmt.Sprint(v))
				continue
			}
			text, err := formatValue(o.def, v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s.%s: %w", secName, key, err))
				continue
			}
			s.file.Section(secName).Key(key).SetValue(text)
		}
	}
	return errors.Join(errs...)
}

// Set stores a single known key.
func (s *Store) Set(sec, key string, value any) error {
	o, ok := lookup(sec, key)
	if !ok {
		return fmt.Errorf("unknown config key %s.%s", sec, key)
	}
	text, err := formatValue(o.def, value)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", sec, key, err)
	}

	s.mu.Lock()
	s.file.Section(sec).Key(key).SetValue(text)
	s.mu.Unlock()
	return nil
}

// Value returns the typed value of a known key, falling back to the default
// when the stored text does not parse.
func (s *Store) Value(sec, key string) (any, bool) {
	o, ok := lookup(sec, key)
	if !ok {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valueLocked(sec, o), true
}

func (s *Store) valueLocked(sec string, o option) any {
	text := s.file.Section(sec).Key(o.key).String()
	v, err := parseValue(o.def, text)
	if err != nil {
		return o.def
	}
	return v
}

func (s *Store) str(sec, key string) string {
	v, _ := s.Value(sec, key)
	str, _ := v.(string)
	return str
}

func (s *Store) float(sec, key string) float64 {
	v, _ := s.Value(sec, key)
	f, _ := v.(float64)
	return f
}

// LoggerID is the logger's identity on the backend.
func (s *Store) LoggerID() string { return s.str(SectionLogging, KeyLoggerID) }

// PairingID identifies the plant the logger is paired with; empty when unpaired.
func (s *Store) PairingID() string { return s.str(SectionLogging, KeyPairingID) }

// SocketURL is the realtime session endpoint.
func (s *Store) SocketURL() string { return s.str(SectionLogging, KeySocketURL) }

// RestURL is the base URL readings are posted to.
func (s *Store) RestURL() string { return s.str(SectionLogging, KeyRestURL) }

// Active reports whether ticks should produce reports.
func (s *Store) Active() bool {
	v, _ := s.Value(SectionLogging, KeyActive)
	b, _ := v.(bool)
	return b
}

// Thresholds returns the moist and dry calibration voltages, read together.
func (s *Store) Thresholds() (moist, dry float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mo, _ := lookup(SectionSoil, KeyMoist)
	do, _ := lookup(SectionSoil, KeyDry)
	moist, _ = s.valueLocked(SectionSoil, mo).(float64)
	dry, _ = s.valueLocked(SectionSoil, do).(float64)
	return moist, dry
}

// AirLimits returns the air thresholds. Nothing acts on them yet.
func (s *Store) AirLimits() (minHumid, maxHumid, minTemp, maxTemp float64) {
	return s.float(SectionAir, KeyMinHumid), s.float(SectionAir, KeyMaxHumid),
		s.float(SectionAir, KeyMinTemp), s.float(SectionAir, KeyMaxTemp)
}
