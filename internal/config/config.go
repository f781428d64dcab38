// Package config loads and validates the JSON configuration document
// described in the system specification: SDR parameters, the trunking
// system identity, talkgroup policy, and audio output settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

// FatalError marks a configuration problem that must abort startup before
// the pipeline runs, per the error taxonomy in the specification.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string { return e.Reason }

func fatalf(format string, args ...interface{}) *FatalError {
	return &FatalError{Reason: fmt.Sprintf(format, args...)}
}

// SystemType enumerates the trunking families the config's "system.type"
// field may name.
type SystemType string

const (
	SystemP25       SystemType = "p25"
	SystemP25Phase1 SystemType = "p25_phase1"
	SystemP25Phase2 SystemType = "p25_phase2"
	SystemSmartnet  SystemType = "smartnet"
	SystemSmartzone SystemType = "smartzone"
	SystemEDACS     SystemType = "edacs"
	SystemDMR       SystemType = "dmr"
	SystemNXDN      SystemType = "nxdn"
	SystemTETRA     SystemType = "tetra"
)

var knownSystemTypes = map[SystemType]bool{
	SystemP25: true, SystemP25Phase1: true, SystemP25Phase2: true,
	SystemSmartnet: true, SystemSmartzone: true, SystemEDACS: true,
	SystemDMR: true, SystemNXDN: true, SystemTETRA: true,
}

// HexInt unmarshals either a JSON number or a "0x"-prefixed hex string into
// an unsigned integer, as required by the configuration document's integer
// fields.
type HexInt uint64

func (h *HexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*h = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		return h.fromString(text)
	}
	return h.fromString(s)
}

func (h *HexInt) fromString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*h = 0
		return nil
	}
	var v uint64
	var err error
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return fmt.Errorf("config: invalid integer %q: %w", s, err)
	}
	*h = HexInt(v)
	return nil
}

func (h HexInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(h))
}

// Gain unmarshals sdr.gain (spec.md §6's `"auto" | f64`) from either the
// literal JSON string "auto" or a JSON number, mirroring HexInt's
// string-or-number tolerance for the same reason: the configuration
// document's schema allows both shapes for this field.
type Gain struct {
	Auto  bool
	Value float64
}

func (g *Gain) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*g = Gain{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		if text == "" || text == "auto" {
			*g = Gain{Auto: true}
			return nil
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return fmt.Errorf("config: sdr.gain %q is neither \"auto\" nor a number: %w", text, err)
		}
		*g = Gain{Value: v}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("config: invalid sdr.gain %s: %w", s, err)
	}
	*g = Gain{Value: v}
	return nil
}

func (g Gain) MarshalJSON() ([]byte, error) {
	if g.Auto {
		return json.Marshal("auto")
	}
	return json.Marshal(g.Value)
}

// IsZero reports whether Gain was never set (neither "auto" nor a
// nonzero value), the condition setDefaults fills with "auto".
func (g Gain) IsZero() bool { return !g.Auto && g.Value == 0 }

// Config is the root of the JSON configuration document (spec.md §6).
type Config struct {
	ConfigVersion string         `json:"config_version,omitempty"`
	SDR           SDRConfig      `json:"sdr"`
	System        SystemConfig   `json:"system"`
	Talkgroups    Talkgroups     `json:"talkgroups"`
	Audio         AudioConfig    `json:"audio"`
	Server        ServerConfig   `json:"server,omitempty"`
	MQTT          MQTTConfig     `json:"mqtt,omitempty"`
	Metrics       MetricsConfig  `json:"metrics,omitempty"`
}

// SDRConfig configures the I/Q source driver (component A).
type SDRConfig struct {
	DeviceIndex    uint32  `json:"device_index"`
	SampleRate     uint32  `json:"sample_rate"`
	Gain           Gain    `json:"gain"` // "auto" or a numeric gain in dB
	PPMCorrection  int32   `json:"ppm_correction"`
	Transport      string  `json:"transport,omitempty"` // "rtltcp" | "mock", default "rtltcp"
	Address        string  `json:"address,omitempty"`   // host:port for rtltcp
}

// SystemConfig describes the trunking system being followed.
type SystemConfig struct {
	Type           SystemType `json:"type"`
	Name           string     `json:"name,omitempty"`
	SystemID       HexInt     `json:"system_id,omitempty"`
	NAC            HexInt     `json:"nac,omitempty"`
	WACN           HexInt     `json:"wacn,omitempty"`
	MCC            HexInt     `json:"mcc,omitempty"`
	MNC            HexInt     `json:"mnc,omitempty"`
	ColorCode      HexInt     `json:"color_code,omitempty"`
	ControlChannels []float64 `json:"control_channels"`
	BaudRate       uint32     `json:"baud_rate,omitempty"`
	Modulation     string     `json:"modulation,omitempty"`
	BaseFrequencyHz float64   `json:"base_frequency_hz,omitempty"` // SmartNet base, Hz
	ChannelSpacingHz float64  `json:"channel_spacing_hz,omitempty"`
}

// Talkgroups carries the call-manager policy (component E).
type Talkgroups struct {
	Enabled    []uint32          `json:"enabled"`
	Priority   map[string]uint8  `json:"priority"`
	Labels     map[string]string `json:"labels"`
}

// AudioConfig configures the audio sink and call recording.
type AudioConfig struct {
	OutputDevice        string `json:"output_device"`
	Codec               string `json:"codec,omitempty"` // "imbe"|"ambe"|"analog", auto by system
	SampleRate          uint32 `json:"sample_rate"`
	RecordCalls         bool   `json:"record_calls"`
	RecordingPath        string `json:"recording_path"`
	CompressRecordings  bool   `json:"compress_recordings,omitempty"`
	Sink                string `json:"sink,omitempty"` // "file" | "rtp", default "file"
	RTPMulticastAddr    string `json:"rtp_multicast_addr,omitempty"`
}

// ServerConfig enables the optional WebSocket event feed (supplements spec.md).
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

// MQTTConfig enables the optional MQTT event feed (supplements spec.md).
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	TopicPrefix string `json:"topic_prefix,omitempty"`
}

// MetricsConfig enables the optional Prometheus endpoint (supplements spec.md).
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

// CallTimeoutMS is the default inactivity timeout for an active call
// (spec.md §3/§5).
const CallTimeoutMS = 5000

// GrantResolveTimeoutMS bounds how long an unresolved frequency-ID grant is
// held pending an Identifier Update before being dropped (spec.md §4.4/§5).
const GrantResolveTimeoutMS = 1000

// SupportedMajorVersion is the highest config_version major component this
// binary understands (SPEC_FULL.md §3).
const SupportedMajorVersion = 1

// Load reads and validates the configuration document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fatalf("reading config %s: %v", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fatalf("parsing config %s: %v", path, err)
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies SDR_DEVICE_INDEX; the other environment
// override, SDR_LOG_LEVEL, is read through LogLevelOverride.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SDR_DEVICE_INDEX"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fatalf("SDR_DEVICE_INDEX=%q is not a valid integer", v)
		}
		c.SDR.DeviceIndex = uint32(n)
	}
	return nil
}

// LogLevelOverride returns the value of SDR_LOG_LEVEL, or "" if unset. The
// CLI flag takes precedence over this when both are present; wiring that
// precedence is cmd/trunkrx's job, not config's.
func LogLevelOverride() string {
	return os.Getenv("SDR_LOG_LEVEL")
}

func (c *Config) setDefaults() error {
	if c.SDR.SampleRate == 0 {
		c.SDR.SampleRate = 2048000
	}
	if c.SDR.Gain.IsZero() {
		c.SDR.Gain = Gain{Auto: true}
	}
	if c.SDR.Transport == "" {
		c.SDR.Transport = "rtltcp"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 8000
	}
	if c.Audio.OutputDevice == "" {
		c.Audio.OutputDevice = "default"
	}
	if c.Audio.Sink == "" {
		c.Audio.Sink = "file"
	}
	if c.Audio.Codec == "" {
		c.Audio.Codec = defaultCodecFor(c.System.Type)
	}
	if c.System.ChannelSpacingHz == 0 {
		c.System.ChannelSpacingHz = 25000
	}
	if c.Talkgroups.Priority == nil {
		c.Talkgroups.Priority = map[string]uint8{}
	}
	if c.Talkgroups.Labels == nil {
		c.Talkgroups.Labels = map[string]string{}
	}
	return nil
}

func defaultCodecFor(t SystemType) string {
	switch t {
	case SystemP25, SystemP25Phase1, SystemP25Phase2:
		return "imbe"
	case SystemDMR:
		return "ambe"
	case SystemTETRA:
		return "ambe"
	default:
		return "analog"
	}
}

// Validate enforces the required-field and range rules of spec.md §6/§7.
func (c *Config) Validate() error {
	if c.ConfigVersion != "" {
		v, err := version.NewVersion(c.ConfigVersion)
		if err != nil {
			return fatalf("config_version %q is not a valid semantic version", c.ConfigVersion)
		}
		if v.Segments()[0] > SupportedMajorVersion {
			return fatalf("config_version %s is newer than supported major version %d", c.ConfigVersion, SupportedMajorVersion)
		}
	}
	if !knownSystemTypes[c.System.Type] {
		return fatalf("system.type %q is not a known system type", c.System.Type)
	}
	if len(c.System.ControlChannels) == 0 {
		return fatalf("system.control_channels must name at least one frequency")
	}
	isP25 := c.System.Type == SystemP25 || c.System.Type == SystemP25Phase1 || c.System.Type == SystemP25Phase2
	if isP25 && c.System.NAC == 0 {
		return fatalf("system.nac is required for P25 systems")
	}
	if c.SDR.SampleRate == 0 {
		return fatalf("sdr.sample_rate must be nonzero")
	}
	return nil
}

// PriorityFor returns the configured priority for a talkgroup, defaulting
// to 5 per spec.md §4.5.
func (t *Talkgroups) PriorityFor(tg uint32) uint8 {
	if p, ok := t.Priority[fmt.Sprint(tg)]; ok {
		return p
	}
	return 5
}

// LabelFor returns the configured label for a talkgroup, or "" if none.
func (t *Talkgroups) LabelFor(tg uint32) string {
	return t.Labels[fmt.Sprint(tg)]
}

// Allowed reports whether a talkgroup passes the enabled-talkgroup filter.
// An empty Enabled list means allow-all (spec.md §4.5 boundary behavior).
func (t *Talkgroups) Allowed(tg uint32) bool {
	if len(t.Enabled) == 0 {
		return true
	}
	for _, e := range t.Enabled {
		if e == tg {
			return true
		}
	}
	return false
}
