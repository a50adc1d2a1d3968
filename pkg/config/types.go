package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
)

var (
	errInvalidDuration = errors.New("invalid duration")
)

type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// parse numeric as nanoseconds
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config is the top-level configuration of the gateway.
type Config struct {
	ServiceName     string                 `json:"service_name"`
	ListenAddr      string                 `json:"listen_addr"` // HTTP and WebSocket, e.g. :8090
	GRPCAddr        string                 `json:"grpc_addr"`   // health endpoint, e.g. :50061
	ShutdownTimeout Duration               `json:"shutdown_timeout"`
	Log             LogConfig              `json:"log"`
	Devices         []DeviceConfig         `json:"devices"`
	Equipment       []EquipmentConfig      `json:"equipment"`
	FaultPriorities map[string]string      `json:"fault_priorities,omitempty"` // fault code -> priority
	Pipeline        PipelineConfig         `json:"pipeline"`
	Escalation      EscalationConfig       `json:"escalation"`
	Broadcast       BroadcastConfig        `json:"broadcast"`
	Notifications   NotificationsConfig    `json:"notifications"`
	ProductionAPI   *ProductionAPIConfig   `json:"production_api,omitempty"`
	Redis           *RedisConfig           `json:"redis,omitempty"`
	Database        DatabaseConfig         `json:"database"`
	Metrics         models.MetricsConfig   `json:"metrics"`
	Security        *models.SecurityConfig `json:"security,omitempty"`
	AllowedOrigins  []string               `json:"allowed_origins,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json or console
}

// DeviceConfig describes one controller and the tags polled from it.
type DeviceConfig struct {
	ID               string      `json:"id"`
	Driver           string      `json:"driver"` // snmp or sim
	Host             string      `json:"host,omitempty"`
	Port             uint16      `json:"port,omitempty"`
	Community        string      `json:"community,omitempty"`
	Version          string      `json:"version,omitempty"`
	Timeout          Duration    `json:"timeout,omitempty"`
	Retries          int         `json:"retries,omitempty"`
	Interval         Duration    `json:"interval,omitempty"`
	FailureThreshold int         `json:"failure_threshold,omitempty"`
	Tags             []TagConfig `json:"tags"`
}

// TagConfig maps a logical tag name to its controller address (an OID for SNMP).
type TagConfig struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// TagMap names the device tags carrying each role for an equipment.
type TagMap struct {
	Running     string `json:"running"`
	FaultWord   string `json:"fault_word,omitempty"`
	TotalCount  string `json:"total_count,omitempty"`
	GoodCount   string `json:"good_count,omitempty"`
	RejectCount string `json:"reject_count,omitempty"`
	Speed       string `json:"speed,omitempty"`
	PlannedStop string `json:"planned_stop,omitempty"`
}

// FaultBit classifies one bit of the fault word.
type FaultBit struct {
	Bit         int              `json:"bit"`
	Code        string           `json:"code"`
	Description string           `json:"description"`
	Type        models.AndonType `json:"type,omitempty"` // fault (default) or quality
	Priority    models.Priority  `json:"priority,omitempty"`
}

type OEETargets struct {
	Availability float64 `json:"availability,omitempty"`
	Performance  float64 `json:"performance,omitempty"`
	Quality      float64 `json:"quality,omitempty"`
	OEE          float64 `json:"oee,omitempty"`
}

// EquipmentConfig is the static description of one piece of equipment.
type EquipmentConfig struct {
	Code                  string          `json:"code"`
	Name                  string          `json:"name,omitempty"`
	LineID                string          `json:"line_id"`
	DeviceID              string          `json:"device_id"`
	Criticality           string          `json:"criticality,omitempty"`
	Tags                  TagMap          `json:"tags"`
	FaultBits             []FaultBit      `json:"fault_bits,omitempty"`
	IdealCycleTime        Duration        `json:"ideal_cycle_time"`
	TargetSpeed           float64         `json:"target_speed,omitempty"`
	Targets               OEETargets      `json:"targets"`
	DowntimeAlertCycles   int             `json:"downtime_alert_cycles,omitempty"`
	DowntimeAlertPriority models.Priority `json:"downtime_alert_priority,omitempty"`
}

// FaultBit returns the classification of bit, if any.
func (e *EquipmentConfig) FaultBit(bit int) (FaultBit, bool) {
	for _, fb := range e.FaultBits {
		if fb.Bit == bit {
			return fb, true
		}
	}

	return FaultBit{}, false
}

type PipelineConfig struct {
	Workers      int      `json:"workers"`
	QueueSize    int      `json:"queue_size"`
	OEEInterval  Duration `json:"oee_interval"`
	HistoryLimit int      `json:"history_limit"`
}

// EscalationRuleConfig is one (priority, level) escalation rule.
type EscalationRuleConfig struct {
	Priority          models.Priority  `json:"priority"`
	Level             int              `json:"level"`
	AckTimeout        Duration         `json:"acknowledgment_timeout"`
	ResolutionTimeout Duration         `json:"resolution_timeout"`
	Recipients        []string         `json:"recipients"`
	Channels          []models.Channel `json:"channels"`
	Template          string           `json:"template,omitempty"`
}

type EscalationConfig struct {
	SweepInterval Duration               `json:"sweep_interval"`
	Rules         []EscalationRuleConfig `json:"rules"`
}

type BroadcastConfig struct {
	QueueSize       int      `json:"queue_size"`
	StarvationGrace Duration `json:"starvation_grace"`
	JanitorInterval Duration `json:"janitor_interval"`
	WriteTimeout    Duration `json:"write_timeout"`
}

// WebhookConfig represents a webhook notification configuration.
type WebhookConfig struct {
	Enabled  bool     `json:"enabled"`
	URL      string   `json:"url"`
	Cooldown Duration `json:"cooldown"`
	Template string   `json:"template"`
	Preset   string   `json:"preset,omitempty"` // discord, used when Template is empty
	Headers  []Header `json:"headers,omitempty"`
}

// Header represents a custom HTTP header.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type MQTTConfig struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	QoS         byte   `json:"qos"`
	TopicPrefix string `json:"topic_prefix"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

type NotificationsConfig struct {
	QueueSize     int             `json:"queue_size"`
	RatePerSecond float64         `json:"rate_per_second"`
	Burst         int             `json:"burst"`
	Webhooks      []WebhookConfig `json:"webhooks,omitempty"`
	MQTT          *MQTTConfig     `json:"mqtt,omitempty"`
	Kafka         *KafkaConfig    `json:"kafka,omitempty"`
}

// ProductionAPIConfig points at the production-management collaborator.
type ProductionAPIConfig struct {
	BaseURL         string   `json:"base_url"`
	Token           string   `json:"token,omitempty"`
	RefreshInterval Duration `json:"refresh_interval"`
	Timeout         Duration `json:"timeout"`
}

type RedisConfig struct {
	Addr      string   `json:"addr"`
	Password  string   `json:"password,omitempty"`
	DB        int      `json:"db"`
	KeyPrefix string   `json:"key_prefix"`
	TTL       Duration `json:"ttl"`
}

type DatabaseConfig struct {
	Driver string `json:"driver"` // sqlite3 or postgres
	DSN    string `json:"dsn"`

	// Retention removes closed history older than this. Zero keeps everything.
	Retention Duration `json:"retention,omitempty"`
}
