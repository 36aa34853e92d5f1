// Package screens turns the declarative screen catalog into list-sync
// sessions and serves them over the console API.
package screens

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-console/configs"
	"github.com/odyssey-erp/odyssey-console/internal/listsync"
	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
)

// Sentinel errors for the screens package.
var (
	ErrUnknownScreen   = fmt.Errorf("screens: unknown screen: %w", httpx.ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("screens: session not found: %w", httpx.ErrNotFound)
	ErrInvalidCatalog  = errors.New("screens: invalid catalog")
)

// SortDef is the default sort of a screen.
type SortDef struct {
	By    string `yaml:"by" json:"by" validate:"required"`
	Order string `yaml:"order" json:"order,omitempty" validate:"omitempty,oneof=asc desc"`
}

// SortKeysDef overrides the outgoing sort parameter names.
type SortKeysDef struct {
	By    string `yaml:"by" json:"by,omitempty"`
	Order string `yaml:"order" json:"order,omitempty"`
}

// FieldDef declares one filter input.
type FieldDef struct {
	Name      string        `yaml:"name" json:"name" validate:"required"`
	Param     string        `yaml:"param" json:"param,omitempty"`
	Label     string        `yaml:"label" json:"label,omitempty"`
	Kind      string        `yaml:"kind" json:"kind" validate:"required,oneof=text select bool number date_from date_to"`
	Immediate bool          `yaml:"immediate" json:"immediate"`
	Debounce  time.Duration `yaml:"debounce" json:"debounce,omitempty" validate:"gte=0"`
	Required  bool          `yaml:"required" json:"required"`
	Default   any           `yaml:"default" json:"default,omitempty"`
	Options   []string      `yaml:"options" json:"options,omitempty"`
}

// Screen declares one list screen.
type Screen struct {
	Name     string      `yaml:"name" json:"name" validate:"required"`
	Title    string      `yaml:"title" json:"title"`
	Resource string      `yaml:"resource" json:"resource" validate:"required"`
	Limit    int         `yaml:"limit" json:"limit" validate:"gte=0"`
	Limits   []int       `yaml:"limits" json:"limits,omitempty" validate:"dive,gt=0"`
	Sort     SortDef     `yaml:"sort" json:"sort"`
	SortKeys SortKeysDef `yaml:"sort_keys" json:"sortKeys"`
	Fields   []FieldDef  `yaml:"fields" json:"fields" validate:"unique=Name,dive"`
}

// Catalog is the set of screens the console serves.
type Catalog struct {
	Screens []Screen `yaml:"screens" validate:"required,min=1,unique=Name,dive"`

	index map[string]int
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var catalog Catalog
	if err := dec.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := catalog.validate(); err != nil {
		return nil, err
	}
	catalog.index = make(map[string]int, len(catalog.Screens))
	for i, screen := range catalog.Screens {
		catalog.index[screen.Name] = i
	}
	return &catalog, nil
}

// LoadCatalog reads the catalog at path, or the embedded default when path
// is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(configs.Screens)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("screens: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func (c *Catalog) validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fieldErr := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fieldErr.Namespace(), fieldErr.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	for _, screen := range c.Screens {
		if screen.Limit > 0 && len(screen.Limits) > 0 && !slices.Contains(screen.Limits, screen.Limit) {
			return fmt.Errorf("%w: screen %s: limit %d not among limits %v", ErrInvalidCatalog, screen.Name, screen.Limit, screen.Limits)
		}
		if screen.SortKeys.Order != "" && screen.SortKeys.By == "" {
			return fmt.Errorf("%w: screen %s: sort_keys.order requires sort_keys.by", ErrInvalidCatalog, screen.Name)
		}
	}
	return nil
}

// List returns the declared screens in catalog order.
func (c *Catalog) List() []Screen {
	return slices.Clone(c.Screens)
}

// Lookup returns the screen called name.
func (c *Catalog) Lookup(name string) (Screen, error) {
	i, ok := c.index[name]
	if !ok {
		return Screen{}, fmt.Errorf("%w: %s", ErrUnknownScreen, name)
	}
	return c.Screens[i], nil
}

// EngineDefaults are applied to every engine built from the catalog.
type EngineDefaults struct {
	// Debounce applies to non-immediate fields without their own delay.
	Debounce time.Duration
	Location *time.Location
	Clock    listsync.Clock
	Logger   *slog.Logger
	Observer listsync.Observer
}

// EngineConfig converts the screen into a listsync.Config.
func (s Screen) EngineConfig(defaults EngineDefaults) listsync.Config {
	fields := make([]listsync.FieldSpec, 0, len(s.Fields))
	for _, def := range s.Fields {
		debounce := def.Debounce
		if debounce <= 0 {
			debounce = defaults.Debounce
		}
		fields = append(fields, listsync.FieldSpec{
			Name:      def.Name,
			Param:     def.Param,
			Kind:      listsync.FieldKind(def.Kind),
			Immediate: def.Immediate,
			Debounce:  debounce,
			Required:  def.Required,
			Default:   def.Default,
		})
	}
	keys := listsync.SortKeys{By: s.SortKeys.By, Order: s.SortKeys.Order}
	return listsync.Config{
		Resource: s.Resource,
		Fields:   fields,
		Sort:     listsync.Sort{By: s.Sort.By, Order: s.Sort.Order},
		SortKeys: keys,
		Limit:    s.Limit,
		Limits:   slices.Clone(s.Limits),
		Location: defaults.Location,
		Clock:    defaults.Clock,
		Logger:   defaults.Logger,
		Observer: defaults.Observer,
	}
}
