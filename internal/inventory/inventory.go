// Package inventory loads the device registry from a JSON or YAML file.
package inventory

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"routerwatch/internal/model"
)

var (
	ErrInvalidDevice = errors.New("invalid device")
	ErrEmptyRegistry = errors.New("inventory has no devices")
)

type rawDevice struct {
	Name              string            `mapstructure:"name"`
	Address           string            `mapstructure:"address"`
	IP                string            `mapstructure:"ip"`
	Credential        string            `mapstructure:"credential"`
	Community         string            `mapstructure:"community"`
	SNMPVersion       string            `mapstructure:"snmp_version"`
	Interfaces        map[string]string `mapstructure:"interfaces"`
	OIDs              *model.MetricOIDs `mapstructure:"oids"`
	CounterWidthBits  *int              `mapstructure:"counter_width_bits"`
	CPUAlertThreshold *float64          `mapstructure:"cpu_alert_threshold"`
	RAMAlertThreshold *float64          `mapstructure:"ram_alert_threshold"`
}

// Registry is the immutable, validated list of devices in inventory order.
type Registry struct {
	devices []model.DeviceConfig
	byName  map[string]int
}

func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory %s: %w", path, err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	reg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes an inventory document. A bare JSON array of devices is accepted as
// well as an object with a "devices" list.
func Parse(data []byte, format string) (*Registry, error) {
	trimmed := bytes.TrimSpace(data)
	if format == "json" && len(trimmed) > 0 && trimmed[0] == '[' {
		wrapped := make([]byte, 0, len(trimmed)+16)
		wrapped = append(wrapped, `{"devices":`...)
		wrapped = append(wrapped, trimmed...)
		wrapped = append(wrapped, '}')
		trimmed = wrapped
	}

	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(trimmed)); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	var raw []rawDevice
	if err := v.UnmarshalKey("devices", &raw); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	return build(raw)
}

func New(devices []model.DeviceConfig) (*Registry, error) {
	if len(devices) == 0 {
		return nil, ErrEmptyRegistry
	}
	r := &Registry{
		devices: make([]model.DeviceConfig, 0, len(devices)),
		byName:  make(map[string]int, len(devices)),
	}
	for _, d := range devices {
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidDevice, d.Name)
		}
		r.byName[d.Name] = len(r.devices)
		r.devices = append(r.devices, d)
	}
	return r, nil
}

func build(raw []rawDevice) (*Registry, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyRegistry
	}
	devices := make([]model.DeviceConfig, 0, len(raw))
	for i, rd := range raw {
		d, err := rd.resolve()
		if err != nil {
			return nil, fmt.Errorf("device #%d: %w", i+1, err)
		}
		devices = append(devices, d)
	}
	return New(devices)
}

func (rd rawDevice) resolve() (model.DeviceConfig, error) {
	d := model.DeviceConfig{
		Name:              strings.TrimSpace(rd.Name),
		Address:           strings.TrimSpace(firstNonEmpty(rd.Address, rd.IP)),
		Credential:        firstNonEmpty(rd.Credential, rd.Community),
		SNMPVersion:       strings.TrimSpace(rd.SNMPVersion),
		CounterWidth:      model.CounterWidth32,
		CPUAlertThreshold: model.DefaultCPUAlertThreshold,
		RAMAlertThreshold: model.DefaultRAMAlertThreshold,
	}
	if d.Name == "" {
		return d, fmt.Errorf("%w: missing name", ErrInvalidDevice)
	}
	if d.Address == "" {
		return d, fmt.Errorf("%w: %s: missing address", ErrInvalidDevice, d.Name)
	}
	if d.Credential == "" {
		return d, fmt.Errorf("%w: %s: missing credential", ErrInvalidDevice, d.Name)
	}
	switch d.SNMPVersion {
	case "":
		d.SNMPVersion = "2c"
	case "1", "2c":
	default:
		return d, fmt.Errorf("%w: %s: unsupported snmp_version %q", ErrInvalidDevice, d.Name, d.SNMPVersion)
	}

	if len(rd.Interfaces) == 0 {
		return d, fmt.Errorf("%w: %s: interfaces must not be empty", ErrInvalidDevice, d.Name)
	}
	d.Interfaces = make(map[string]string, len(rd.Interfaces))
	seen := make(map[string]string, len(rd.Interfaces))
	for idx, name := range rd.Interfaces {
		idx = strings.TrimSpace(idx)
		name = strings.TrimSpace(name)
		if n, err := strconv.ParseUint(idx, 10, 32); err != nil || n == 0 {
			return d, fmt.Errorf("%w: %s: interface index %q is not a positive integer", ErrInvalidDevice, d.Name, idx)
		}
		if name == "" {
			return d, fmt.Errorf("%w: %s: interface %s has no name", ErrInvalidDevice, d.Name, idx)
		}
		if other, dup := seen[name]; dup {
			return d, fmt.Errorf("%w: %s: interface name %q used by %s and %s", ErrInvalidDevice, d.Name, name, other, idx)
		}
		seen[name] = idx
		d.Interfaces[idx] = name
	}

	if rd.OIDs == nil {
		return d, fmt.Errorf("%w: %s: missing oids", ErrInvalidDevice, d.Name)
	}
	d.OIDs = model.MetricOIDs{
		CPU:      strings.TrimSpace(rd.OIDs.CPU),
		RAMTotal: strings.TrimSpace(rd.OIDs.RAMTotal),
		RAMUsed:  strings.TrimSpace(rd.OIDs.RAMUsed),
	}
	if d.OIDs.CPU == "" || d.OIDs.RAMTotal == "" || d.OIDs.RAMUsed == "" {
		return d, fmt.Errorf("%w: %s: oids require cpu, ram_total and ram_used", ErrInvalidDevice, d.Name)
	}

	if rd.CounterWidthBits != nil {
		switch *rd.CounterWidthBits {
		case 32:
			d.CounterWidth = model.CounterWidth32
		case 64:
			d.CounterWidth = model.CounterWidth64
		default:
			return d, fmt.Errorf("%w: %s: counter_width_bits must be 32 or 64", ErrInvalidDevice, d.Name)
		}
	}
	if rd.CPUAlertThreshold != nil {
		if *rd.CPUAlertThreshold <= 0 || *rd.CPUAlertThreshold > 100 {
			return d, fmt.Errorf("%w: %s: cpu_alert_threshold out of range", ErrInvalidDevice, d.Name)
		}
		d.CPUAlertThreshold = *rd.CPUAlertThreshold
	}
	if rd.RAMAlertThreshold != nil {
		if *rd.RAMAlertThreshold <= 0 || *rd.RAMAlertThreshold > 100 {
			return d, fmt.Errorf("%w: %s: ram_alert_threshold out of range", ErrInvalidDevice, d.Name)
		}
		d.RAMAlertThreshold = *rd.RAMAlertThreshold
	}
	return d, nil
}

// Devices returns a copy of the registry in inventory order.
func (r *Registry) Devices() []model.DeviceConfig {
	out := make([]model.DeviceConfig, len(r.devices))
	copy(out, r.devices)
	return out
}

func (r *Registry) Get(name string) (model.DeviceConfig, bool) {
	i, ok := r.byName[name]
	if !ok {
		return model.DeviceConfig{}, false
	}
	return r.devices[i], true
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.Name)
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.devices)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
