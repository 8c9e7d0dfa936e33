package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	db "hwbench/debug"
)

const (
	HWBENCHCONF  = "HWBENCHCONF"
	HWBENCHDEBUG = db.HWBENCHDEBUG
	HWBENCHPERF  = "HWBENCHPERF"
)

// Default params
var defaults = `
workload:
  cache_line_size: 64
  burst_block: 1000
  burst_factor: 4
  default_buffer: 64MiB

hwcounter:
  exclude_kernel: false
  exclude_hv: true

numa:
  sysfs_root: /sys/devices/system/node
  max_nodes: 256

metrics:
  proc_root: /proc

lockbench:
  trials: 5
  pin: false
`

type Config struct {
	Workload struct {
		// Cache line size used to scale strided access.
		CACHE_LINE_SIZE int `yaml:"cache_line_size"`
		// Iterations per compute/memory burst in the bursty mixed workload.
		BURST_BLOCK uint64 `yaml:"burst_block"`
		// Compute ratio multiplier (and divisor) for bursts.
		BURST_FACTOR int `yaml:"burst_factor"`
		// Default backing buffer size, in humanize notation.
		DEFAULT_BUFFER string `yaml:"default_buffer"`
	} `yaml:"workload"`
	HWCounter struct {
		EXCLUDE_KERNEL bool `yaml:"exclude_kernel"`
		EXCLUDE_HV     bool `yaml:"exclude_hv"`
	} `yaml:"hwcounter"`
	Numa struct {
		// Directory holding node<N> entries.
		SYSFS_ROOT string `yaml:"sysfs_root"`
		// Upper bound on node ids probed during discovery.
		MAX_NODES int `yaml:"max_nodes"`
	} `yaml:"numa"`
	Metrics struct {
		PROC_ROOT string `yaml:"proc_root"`
	} `yaml:"metrics"`
	Lockbench struct {
		TRIALS int  `yaml:"trials"`
		PIN    bool `yaml:"pin"`
	} `yaml:"lockbench"`
}

var Conf *Config

func init() {
	Conf = ReadConfig(defaults)
	if ov := FromEnv(os.Getenv(HWBENCHCONF)); len(ov) > 0 {
		if err := Override(Conf, ov); err != nil {
			db.DPrintf(db.ALWAYS, "Ignoring %v: %v", HWBENCHCONF, err)
		}
	}
}

func ReadConfig(params string) *Config {
	config := &Config{}
	d := yaml.NewDecoder(strings.NewReader(params))
	if err := d.Decode(config); err != nil {
		db.DFatalf("Yaml decode %v err %v\n", params, err)
	}
	return config
}

// Load a YAML file on top of the defaults.
func ReadConfigFile(pn string) (*Config, error) {
	config := ReadConfig(defaults)
	file, err := os.Open(pn)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	d := yaml.NewDecoder(file)
	if err := d.Decode(config); err != nil {
		return nil, fmt.Errorf("decode %v: %w", pn, err)
	}
	return config, nil
}

// Apply a nested map of overrides (e.g., {"numa": {"max_nodes": 8}}) to
// config. Values are weakly typed, so strings from the environment work.
func Override(config *Config, ov map[string]interface{}) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           config,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := d.Decode(ov); err != nil {
		return err
	}
	db.DPrintf(db.CONFIG, "Override %v -> %+v", ov, *config)
	return nil
}

// Parse "section.key=value;section.key=value" into a nested override map.
func FromEnv(s string) map[string]interface{} {
	ov := make(map[string]interface{})
	for _, kv := range strings.Split(s, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			db.DPrintf(db.CONFIG, "Skip malformed override %q", kv)
			continue
		}
		sec, key, ok := strings.Cut(strings.TrimSpace(k), ".")
		if !ok {
			db.DPrintf(db.CONFIG, "Skip override without section %q", kv)
			continue
		}
		m, ok := ov[sec].(map[string]interface{})
		if !ok {
			m = make(map[string]interface{})
			ov[sec] = m
		}
		m[key] = strings.TrimSpace(v)
	}
	return ov
}

// Default backing buffer size in bytes.
func (c *Config) DefaultBufferBytes() (uint64, error) {
	return humanize.ParseBytes(c.Workload.DEFAULT_BUFFER)
}
