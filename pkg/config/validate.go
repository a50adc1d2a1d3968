package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
)

const (
	defaultServiceName      = "lineradar"
	defaultListenAddr       = ":8090"
	defaultGRPCAddr         = ":50061"
	defaultShutdownTimeout  = 10 * time.Second
	defaultPollInterval     = time.Second
	defaultFailureThreshold = 5
	defaultDeviceTimeout    = 2 * time.Second
	defaultSNMPPort         = 161
	defaultAlertCycles      = 5
	defaultWorkers          = 8
	defaultQueueSize        = 256
	defaultOEEInterval      = 5 * time.Second
	defaultHistoryLimit     = 100
	defaultSweepInterval    = 30 * time.Second
	defaultStarvationGrace  = 30 * time.Second
	defaultJanitorInterval  = 5 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultNotifyQueue      = 1024
	defaultNotifyRate       = 10
	defaultNotifyBurst      = 20
	defaultRefreshInterval  = time.Minute
	defaultAPITimeout       = 10 * time.Second
	defaultRedisTTL         = 24 * time.Hour
	defaultMetricsRetention = 100
	maxFaultBit             = 63
)

var (
	errNoDevices          = errors.New("at least one device is required")
	errDeviceID           = errors.New("device id is required")
	errDuplicateDevice    = errors.New("duplicate device id")
	errUnknownDriver      = errors.New("unknown device driver")
	errDeviceHost         = errors.New("device host is required")
	errEquipmentCode      = errors.New("equipment code is required")
	errDuplicateEquipment = errors.New("duplicate equipment code")
	errUnknownDevice      = errors.New("equipment references unknown device")
	errUnknownTag         = errors.New("equipment references unknown tag")
	errRunningTag         = errors.New("running tag is required")
	errFaultBitRange      = errors.New("fault bit out of range")
	errInvalidFaultType   = errors.New("invalid fault bit type")
	errInvalidRuleLevel   = errors.New("escalation rule level must be >= 1")
	errDuplicateRule      = errors.New("duplicate escalation rule")
	errRuleTimeout        = errors.New("escalation rule needs an acknowledgment timeout")
	errInvalidChannel     = errors.New("invalid notification channel")
	errUnknownDBDriver    = errors.New("unknown database driver")
	errMissingLevelOne    = errors.New("escalation rules must start at level 1")
)

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	c.applyDefaults()

	if len(c.Devices) == 0 {
		return errNoDevices
	}

	devices := make(map[string]map[string]struct{}, len(c.Devices))

	for i := range c.Devices {
		d := &c.Devices[i]
		if err := d.validate(); err != nil {
			return err
		}

		if _, dup := devices[d.ID]; dup {
			return fmt.Errorf("%w: %s", errDuplicateDevice, d.ID)
		}

		tags := make(map[string]struct{}, len(d.Tags))
		for _, t := range d.Tags {
			tags[t.Name] = struct{}{}
		}

		devices[d.ID] = tags
	}

	seen := make(map[string]struct{}, len(c.Equipment))

	for i := range c.Equipment {
		e := &c.Equipment[i]
		if err := e.validate(devices); err != nil {
			return err
		}

		if _, dup := seen[e.Code]; dup {
			return fmt.Errorf("%w: %s", errDuplicateEquipment, e.Code)
		}

		seen[e.Code] = struct{}{}
	}

	for code, p := range c.FaultPriorities {
		if _, err := models.ParsePriority(p); err != nil {
			return fmt.Errorf("fault %s: %w", code, err)
		}
	}

	if err := c.Escalation.validate(); err != nil {
		return err
	}

	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("%w: %s", errUnknownDBDriver, c.Database.Driver)
	}

	if c.Security != nil {
		return c.Security.Validate()
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}

	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.GRPCAddr == "" {
		c.GRPCAddr = defaultGRPCAddr
	}

	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = Duration(defaultShutdownTimeout)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	p := &c.Pipeline
	if p.Workers <= 0 {
		p.Workers = defaultWorkers
	}

	if p.QueueSize <= 0 {
		p.QueueSize = defaultQueueSize
	}

	if p.OEEInterval <= 0 {
		p.OEEInterval = Duration(defaultOEEInterval)
	}

	if p.HistoryLimit <= 0 {
		p.HistoryLimit = defaultHistoryLimit
	}

	if c.Escalation.SweepInterval <= 0 {
		c.Escalation.SweepInterval = Duration(defaultSweepInterval)
	}

	b := &c.Broadcast
	if b.QueueSize <= 0 {
		b.QueueSize = defaultQueueSize
	}

	if b.StarvationGrace <= 0 {
		b.StarvationGrace = Duration(defaultStarvationGrace)
	}

	if b.JanitorInterval <= 0 {
		b.JanitorInterval = Duration(defaultJanitorInterval)
	}

	if b.WriteTimeout <= 0 {
		b.WriteTimeout = Duration(defaultWriteTimeout)
	}

	n := &c.Notifications
	if n.QueueSize <= 0 {
		n.QueueSize = defaultNotifyQueue
	}

	if n.RatePerSecond <= 0 {
		n.RatePerSecond = defaultNotifyRate
	}

	if n.Burst <= 0 {
		n.Burst = defaultNotifyBurst
	}

	if c.ProductionAPI != nil {
		if c.ProductionAPI.RefreshInterval <= 0 {
			c.ProductionAPI.RefreshInterval = Duration(defaultRefreshInterval)
		}

		if c.ProductionAPI.Timeout <= 0 {
			c.ProductionAPI.Timeout = Duration(defaultAPITimeout)
		}
	}

	if c.Redis != nil {
		if c.Redis.KeyPrefix == "" {
			c.Redis.KeyPrefix = defaultServiceName + ":"
		}

		if c.Redis.TTL <= 0 {
			c.Redis.TTL = Duration(defaultRedisTTL)
		}
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}

	if c.Database.DSN == "" && c.Database.Driver == "sqlite3" {
		c.Database.DSN = defaultServiceName + ".db"
	}

	if c.Metrics.Retention <= 0 {
		c.Metrics.Retention = defaultMetricsRetention
	}
}

func (d *DeviceConfig) validate() error {
	if d.ID == "" {
		return errDeviceID
	}

	if d.Interval <= 0 {
		d.Interval = Duration(defaultPollInterval)
	}

	if d.FailureThreshold <= 0 {
		d.FailureThreshold = defaultFailureThreshold
	}

	if d.Timeout <= 0 {
		d.Timeout = Duration(defaultDeviceTimeout)
	}

	switch d.Driver {
	case "", "snmp":
		d.Driver = "snmp"

		if d.Host == "" {
			return fmt.Errorf("%w: %s", errDeviceHost, d.ID)
		}

		if d.Port == 0 {
			d.Port = defaultSNMPPort
		}

		if d.Community == "" {
			d.Community = "public"
		}

		if d.Version == "" {
			d.Version = "v2c"
		}
	case "sim":
	default:
		return fmt.Errorf("%w: %s (device %s)", errUnknownDriver, d.Driver, d.ID)
	}

	return nil
}

func (e *EquipmentConfig) validate(devices map[string]map[string]struct{}) error {
	if e.Code == "" {
		return errEquipmentCode
	}

	tags, ok := devices[e.DeviceID]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", errUnknownDevice, e.Code, e.DeviceID)
	}

	if e.Tags.Running == "" {
		return fmt.Errorf("%w: %s", errRunningTag, e.Code)
	}

	for _, name := range []string{
		e.Tags.Running, e.Tags.FaultWord, e.Tags.TotalCount, e.Tags.GoodCount,
		e.Tags.RejectCount, e.Tags.Speed, e.Tags.PlannedStop,
	} {
		if name == "" {
			continue
		}

		if _, ok := tags[name]; !ok {
			return fmt.Errorf("%w: %s.%s", errUnknownTag, e.Code, name)
		}
	}

	for i := range e.FaultBits {
		fb := &e.FaultBits[i]
		if fb.Bit < 0 || fb.Bit > maxFaultBit {
			return fmt.Errorf("%w: %s bit %d", errFaultBitRange, e.Code, fb.Bit)
		}

		if fb.Type == "" {
			fb.Type = models.AndonFault
		}

		if fb.Type != models.AndonFault && fb.Type != models.AndonQuality {
			return fmt.Errorf("%w: %s", errInvalidFaultType, fb.Type)
		}

		if fb.Priority != "" && !fb.Priority.Valid() {
			return fmt.Errorf("%s bit %d: %w", e.Code, fb.Bit, models.ErrInvalidPriority)
		}
	}

	if e.DowntimeAlertCycles <= 0 {
		e.DowntimeAlertCycles = defaultAlertCycles
	}

	if e.DowntimeAlertPriority == "" {
		e.DowntimeAlertPriority = models.PriorityMedium
	}

	if !e.DowntimeAlertPriority.Valid() {
		return fmt.Errorf("%s downtime alert: %w", e.Code, models.ErrInvalidPriority)
	}

	return nil
}

func (c *EscalationConfig) validate() error {
	type key struct {
		p models.Priority
		l int
	}

	seen := make(map[key]struct{}, len(c.Rules))
	first := make(map[models.Priority]bool)

	for _, r := range c.Rules {
		if !r.Priority.Valid() {
			return fmt.Errorf("escalation rule: %w: %q", models.ErrInvalidPriority, r.Priority)
		}

		if r.Level < 1 {
			return fmt.Errorf("%w: %s/%d", errInvalidRuleLevel, r.Priority, r.Level)
		}

		if r.AckTimeout <= 0 {
			return fmt.Errorf("%w: %s/%d", errRuleTimeout, r.Priority, r.Level)
		}

		for _, ch := range r.Channels {
			if !ch.Valid() {
				return fmt.Errorf("%w: %s", errInvalidChannel, ch)
			}
		}

		k := key{r.Priority, r.Level}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s/%d", errDuplicateRule, r.Priority, r.Level)
		}

		seen[k] = struct{}{}

		if r.Level == 1 {
			first[r.Priority] = true
		}
	}

	for k := range seen {
		if !first[k.p] {
			return fmt.Errorf("%w: %s", errMissingLevelOne, k.p)
		}
	}

	return nil
}

// LoadFromEnv overrides selected settings from prefixed environment variables.
func (c *Config) LoadFromEnv(prefix string) {
	setString(prefix+"_LISTEN_ADDR", &c.ListenAddr)
	setString(prefix+"_GRPC_ADDR", &c.GRPCAddr)
	setString(prefix+"_LOG_LEVEL", &c.Log.Level)
	setString(prefix+"_LOG_FORMAT", &c.Log.Format)
	setString(prefix+"_DB_DRIVER", &c.Database.Driver)
	setString(prefix+"_DB_DSN", &c.Database.DSN)

	if addr := os.Getenv(prefix + "_REDIS_ADDR"); addr != "" {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}

		c.Redis.Addr = addr
	}

	if c.Redis != nil {
		setString(prefix+"_REDIS_PASSWORD", &c.Redis.Password)

		if db := os.Getenv(prefix + "_REDIS_DB"); db != "" {
			if n, err := strconv.Atoi(db); err == nil {
				c.Redis.DB = n
			}
		}
	}

	if url := os.Getenv(prefix + "_PRODUCTION_API_URL"); url != "" {
		if c.ProductionAPI == nil {
			c.ProductionAPI = &ProductionAPIConfig{}
		}

		c.ProductionAPI.BaseURL = url
	}

	if c.ProductionAPI != nil {
		setString(prefix+"_PRODUCTION_API_TOKEN", &c.ProductionAPI.Token)
	}

	if c.Notifications.MQTT != nil {
		setString(prefix+"_MQTT_BROKER", &c.Notifications.MQTT.Broker)
		setString(prefix+"_MQTT_USERNAME", &c.Notifications.MQTT.Username)
		setString(prefix+"_MQTT_PASSWORD", &c.Notifications.MQTT.Password)
	}
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
