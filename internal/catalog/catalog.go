// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

// Package catalog loads the ship catalog (archetypes, upgrades and the token
// budget) and turns a player's loadout into a configured combat ship.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"io"
	"os"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/pftl/pftl/internal/combat"
)

// Error codes returned by catalog loading and loadout configuration.
const (
	CodeCatalogInvalid   = "CATALOG_INVALID"
	CodeUnknownArchetype = "UNKNOWN_ARCHETYPE"
	CodeUnknownUpgrade   = "UNKNOWN_UPGRADE"
	CodeBudgetExceeded   = "BUDGET_EXCEEDED"
	CodeInvalidLoadout   = "INVALID_LOADOUT"
)

// DefaultBudget is the token budget a player spends on ship and upgrades.
const DefaultBudget = 100

// SupportedVersions is the range of catalog format versions this build reads.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

//go:embed default.yaml
var defaultCatalog []byte

var validate = validator.New(validator.WithRequiredStructEnabled())

// WeaponEntry is one weapon mount in an archetype.
type WeaponEntry struct {
	Kind     string  `json:"kind" yaml:"kind" validate:"required,oneof=laser railgun missile nuclear emp" jsonschema:"enum=laser,enum=railgun,enum=missile,enum=nuclear,enum=emp"`
	Power    int     `json:"power" yaml:"power" validate:"gte=0" jsonschema:"minimum=0"`
	Accuracy float64 `json:"accuracy" yaml:"accuracy" validate:"gte=0,lte=1" jsonschema:"minimum=0,maximum=1"`
	Reload   int     `json:"reload" yaml:"reload" validate:"gte=0" jsonschema:"minimum=0"`
}

// ArchetypeEntry is a ship class as written in the catalog file.
type ArchetypeEntry struct {
	Name          string        `json:"name" yaml:"name" validate:"required,max=64" jsonschema:"minLength=1,maxLength=64"`
	Description   string        `json:"description,omitempty" yaml:"description,omitempty"`
	Cost          int           `json:"cost" yaml:"cost" validate:"gte=0" jsonschema:"minimum=0"`
	Health        int           `json:"health" yaml:"health" validate:"gt=0" jsonschema:"minimum=1"`
	Shields       int           `json:"shields" yaml:"shields" validate:"gte=0" jsonschema:"minimum=0"`
	Power         int           `json:"power" yaml:"power" validate:"gte=0" jsonschema:"minimum=0"`
	Speed         int           `json:"speed" yaml:"speed" validate:"gte=0" jsonschema:"minimum=0"`
	Fuel          int           `json:"fuel" yaml:"fuel" validate:"gte=0" jsonschema:"minimum=0"`
	WeaponSlots   int           `json:"weapon_slots" yaml:"weapon_slots" validate:"gte=0" jsonschema:"minimum=0"`
	CargoCapacity int           `json:"cargo_capacity,omitempty" yaml:"cargo_capacity,omitempty" validate:"gte=0" jsonschema:"minimum=0"`
	CrewCapacity  int           `json:"crew_capacity" yaml:"crew_capacity" validate:"gte=0" jsonschema:"minimum=0"`
	Evasion       float64       `json:"evasion,omitempty" yaml:"evasion,omitempty" validate:"gte=0,lt=1" jsonschema:"minimum=0,exclusiveMaximum=1"`
	Weapons       []WeaponEntry `json:"weapons" yaml:"weapons" validate:"dive"`
}

// UpgradeEntry is an upgrade as written in the catalog file.
type UpgradeEntry struct {
	Name        string           `json:"name" yaml:"name" validate:"required,max=64" jsonschema:"minLength=1,maxLength=64"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Cost        int              `json:"cost" yaml:"cost" validate:"gte=0" jsonschema:"minimum=0"`
	Add         combat.StatBlock `json:"add,omitempty" yaml:"add,omitempty"`
	Multiply    combat.StatScale `json:"multiply,omitempty" yaml:"multiply,omitempty"`
}

// Catalog is the read-only set of ship classes and upgrades players choose
// from. Use Parse, Load or Default to obtain a validated catalog.
type Catalog struct {
	Version    string           `json:"version" yaml:"version" validate:"required" jsonschema:"description=Catalog format version (semver)"`
	Budget     int              `json:"budget" yaml:"budget" validate:"gt=0" jsonschema:"minimum=1"`
	Archetypes []ArchetypeEntry `json:"archetypes" yaml:"archetypes" validate:"required,min=1,dive" jsonschema:"minItems=1"`
	Upgrades   []UpgradeEntry   `json:"upgrades,omitempty" yaml:"upgrades,omitempty" validate:"dive"`

	archetypes map[string]combat.Archetype
	upgrades   map[string]combat.Upgrade
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// DefaultYAML returns the raw embedded catalog.
func DefaultYAML() []byte {
	return bytes.Clone(defaultCatalog)
}

// Load reads and validates a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, oops.Code(CodeCatalogInvalid).With("path", path).Wrapf(err, "read catalog")
	}
	c, err := Parse(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return c, nil
}

// Parse decodes YAML catalog data, checks it against the catalog schema and
// validates its contents.
func Parse(data []byte) (*Catalog, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, oops.Code(CodeCatalogInvalid).Wrap(err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, oops.Code(CodeCatalogInvalid).Wrapf(err, "decode catalog")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks field constraints, the format version, name uniqueness and
// weapon slot usage, then indexes the entries for lookup.
func (c *Catalog) Validate() error {
	if err := validate.Struct(c); err != nil {
		return oops.Code(CodeCatalogInvalid).Wrapf(err, "catalog validation failed")
	}

	version, err := semver.NewVersion(c.Version)
	if err != nil {
		return oops.Code(CodeCatalogInvalid).With("version", c.Version).Wrapf(err, "invalid catalog version")
	}
	supported, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return oops.Wrap(err)
	}
	if !supported.Check(version) {
		return oops.Code(CodeCatalogInvalid).
			With("version", c.Version).
			With("supported", SupportedVersions).
			Errorf("unsupported catalog version %s", c.Version)
	}

	archetypes := make(map[string]combat.Archetype, len(c.Archetypes))
	for _, a := range c.Archetypes {
		if _, dup := archetypes[a.Name]; dup {
			return oops.Code(CodeCatalogInvalid).With("archetype", a.Name).Errorf("duplicate archetype %q", a.Name)
		}
		if len(a.Weapons) > a.WeaponSlots {
			return oops.Code(CodeCatalogInvalid).
				With("archetype", a.Name).
				With("weapons", len(a.Weapons)).
				With("weapon_slots", a.WeaponSlots).
				Errorf("archetype %q mounts more weapons than it has slots", a.Name)
		}
		archetypes[a.Name] = a.archetype()
	}

	upgrades := make(map[string]combat.Upgrade, len(c.Upgrades))
	for _, u := range c.Upgrades {
		if _, dup := upgrades[u.Name]; dup {
			return oops.Code(CodeCatalogInvalid).With("upgrade", u.Name).Errorf("duplicate upgrade %q", u.Name)
		}
		m := u.Multiply
		if m.Health < 0 || m.Shields < 0 || m.Power < 0 || m.Speed < 0 || m.Fuel < 0 || m.WeaponPower < 0 {
			return oops.Code(CodeCatalogInvalid).With("upgrade", u.Name).Errorf("upgrade %q has a negative multiplier", u.Name)
		}
		upgrades[u.Name] = combat.Upgrade{Name: u.Name, Cost: u.Cost, Add: u.Add, Multiply: u.Multiply}
	}

	c.archetypes = archetypes
	c.upgrades = upgrades
	return nil
}

func (a ArchetypeEntry) archetype() combat.Archetype {
	weapons := make([]combat.WeaponSpec, len(a.Weapons))
	for i, w := range a.Weapons {
		weapons[i] = combat.WeaponSpec{
			Kind:     combat.WeaponKind(w.Kind),
			Power:    w.Power,
			Accuracy: w.Accuracy,
			Reload:   w.Reload,
		}
	}
	return combat.Archetype{
		Name:          a.Name,
		Cost:          a.Cost,
		Health:        a.Health,
		Shields:       a.Shields,
		Power:         a.Power,
		Speed:         a.Speed,
		Fuel:          a.Fuel,
		WeaponSlots:   a.WeaponSlots,
		CargoCapacity: a.CargoCapacity,
		CrewCapacity:  a.CrewCapacity,
		Evasion:       a.Evasion,
		Weapons:       weapons,
	}
}

// Archetype returns the ship class with the given name.
func (c *Catalog) Archetype(name string) (combat.Archetype, error) {
	a, ok := c.archetypes[name]
	if !ok {
		return combat.Archetype{}, oops.Code(CodeUnknownArchetype).
			With("archetype", name).
			Errorf("unknown archetype %q", name)
	}
	a.Weapons = append([]combat.WeaponSpec(nil), a.Weapons...)
	return a, nil
}

// Upgrade returns the upgrade with the given name.
func (c *Catalog) Upgrade(name string) (combat.Upgrade, error) {
	u, ok := c.upgrades[name]
	if !ok {
		return combat.Upgrade{}, oops.Code(CodeUnknownUpgrade).
			With("upgrade", name).
			Errorf("unknown upgrade %q", name)
	}
	return u, nil
}

// ArchetypeNames returns every archetype name, sorted.
func (c *Catalog) ArchetypeNames() []string {
	return sortedKeys(c.archetypes)
}

// UpgradeNames returns every upgrade name, sorted.
func (c *Catalog) UpgradeNames() []string {
	return sortedKeys(c.upgrades)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
