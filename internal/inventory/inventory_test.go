package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routerwatch/internal/model"
)

const legacyInventory = `[
  {
    "name": "Mikrotik Core",
    "ip": "192.168.88.1",
    "community": "public",
    "interfaces": {"2": "ether2-uplink", "1": "ether1"},
    "oids": {
      "cpu": "1.3.6.1.4.1.2021.11.10.0",
      "ram_total": "1.3.6.1.2.1.25.2.3.1.5.65536",
      "ram_used": "1.3.6.1.2.1.25.2.3.1.6.65536"
    },
    "cpu_alert_threshold": 70
  }
]`

const yamlInventory = `
devices:
  - name: edge-1
    address: 10.0.0.1:1161
    credential: s3cret
    counter_width_bits: 64
    interfaces:
      "10": sfp1
    oids:
      cpu: 1.3.6.1.4.1.2021.11.10.0
      ram_total: 1.3.6.1.2.1.25.2.3.1.5.65536
      ram_used: 1.3.6.1.2.1.25.2.3.1.6.65536
  - name: edge-2
    address: 10.0.0.2
    credential: s3cret
    ram_alert_threshold: 75.5
    interfaces:
      "1": ether1
    oids:
      cpu: 1.3.6.1.4.1.2021.11.10.0
      ram_total: 1.3.6.1.2.1.25.2.3.1.5.65536
      ram_used: 1.3.6.1.2.1.25.2.3.1.6.65536
`

func TestParseLegacyJSONArray(t *testing.T) {
	reg, err := Parse([]byte(legacyInventory), "json")
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())

	d, ok := reg.Get("Mikrotik Core")
	require.True(t, ok)
	assert.Equal(t, "192.168.88.1", d.Address)
	assert.Equal(t, "public", d.Credential)
	assert.Equal(t, "2c", d.SNMPVersion)
	assert.Equal(t, model.CounterWidth32, d.CounterWidth)
	assert.Equal(t, 70.0, d.CPUAlertThreshold)
	assert.Equal(t, model.DefaultRAMAlertThreshold, d.RAMAlertThreshold)
	assert.Equal(t, []string{"1", "2"}, d.InterfaceIndexes())
	assert.Equal(t, []string{"ether1", "ether2-uplink"}, d.InterfaceNames())
}

func TestLoadYAMLKeepsOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlInventory), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"edge-1", "edge-2"}, reg.Names())

	d, _ := reg.Get("edge-1")
	assert.Equal(t, model.CounterWidth64, d.CounterWidth)
	assert.Equal(t, "sfp1", d.Interfaces["10"])

	d, _ = reg.Get("edge-2")
	assert.Equal(t, 75.5, d.RAMAlertThreshold)
}

func TestParseRejectsInvalidDevices(t *testing.T) {
	tests := map[string]string{
		"missing name":        `[{"address":"1.1.1.1","credential":"c","interfaces":{"1":"a"},"oids":{"cpu":"1","ram_total":"2","ram_used":"3"}}]`,
		"missing address":     `[{"name":"x","credential":"c","interfaces":{"1":"a"},"oids":{"cpu":"1","ram_total":"2","ram_used":"3"}}]`,
		"missing credential":  `[{"name":"x","address":"1.1.1.1","interfaces":{"1":"a"},"oids":{"cpu":"1","ram_total":"2","ram_used":"3"}}]`,
		"empty interfaces":    `[{"name":"x","address":"1.1.1.1","credential":"c","interfaces":{},"oids":{"cpu":"1","ram_total":"2","ram_used":"3"}}]`,
		"missing oids":        `[{"name":"x","address":"1.1.1.1","credential":"c","interfaces":{"1":"a"}}]`,
		"partial oids":        `[{"name":"x","address":"1.1.1.1","credential":"c","interfaces":{"1":"a"},"oids":{"cpu":"1"}}]`,
		"bad counter width":   `[{"name":"x","address":"1.1.1.1","credential":"c","interfaces":{"1":"a"},"oids":{"cpu":"1","ram_total":"2","ram_used":"3"},"counter_width_bits":16}]`,
		"bad interface index": `[{"name":"x","address":"1.1.1.1","credential":"c","interfaces":{"eth":"a"},"oids":{"cpu":"1","ram_total":"2","ram_used":"3"}}]`,
		"threshold too high":  `[{"name":"x","address":"1.1.1.1","credential":"c","interfaces":{"1":"a"},"oids":{"cpu":"1","ram_total":"2","ram_used":"3"},"cpu_alert_threshold":150}]`,
		"duplicate device": `[
			{"name":"x","address":"1.1.1.1","credential":"c","interfaces":{"1":"a"},"oids":{"cpu":"1","ram_total":"2","ram_used":"3"}},
			{"name":"x","address":"1.1.1.2","credential":"c","interfaces":{"1":"a"},"oids":{"cpu":"1","ram_total":"2","ram_used":"3"}}]`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), "json")
			assert.ErrorIs(t, err, ErrInvalidDevice)
		})
	}
}

func TestParseEmptyInventory(t *testing.T) {
	_, err := Parse([]byte(`{"devices": []}`), "json")
	assert.ErrorIs(t, err, ErrEmptyRegistry)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
