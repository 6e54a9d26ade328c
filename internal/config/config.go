package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用程序配置结构
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Fleet     FleetConfig     `mapstructure:"fleet"`
	Station   StationConfig   `mapstructure:"station"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	CSMS      CSMSConfig      `mapstructure:"csms"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	EventSink EventSinkConfig `mapstructure:"event_sink"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
}

// AppConfig 应用程序基本信息
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Profile string `mapstructure:"profile"`
}

// FleetConfig 车队规模配置
type FleetConfig struct {
	StationCount int    `mapstructure:"station_count"`
	ProfileName  string `mapstructure:"profile_name"`
	ScaleStep    int    `mapstructure:"scale_step"`
}

// StationConfig 单个模拟站点的行为配置，对应 spec §4.E 的各项时间/概率参数
type StationConfig struct {
	IdleMin                time.Duration `mapstructure:"idle_min"`
	IdleMax                time.Duration `mapstructure:"idle_max"`
	SampleIntervalMin      time.Duration `mapstructure:"sample_interval_min"`
	SampleIntervalMax      time.Duration `mapstructure:"sample_interval_max"`
	OfflineProbability     float64       `mapstructure:"offline_probability"`
	OfflineDuration        time.Duration `mapstructure:"offline_duration"`
	EnergyStepMinWh        float64       `mapstructure:"energy_step_min_wh"`
	EnergyStepMaxWh        float64       `mapstructure:"energy_step_max_wh"`
	IdTagPool              []string      `mapstructure:"id_tag_pool"`
	ConnectTimeout         time.Duration `mapstructure:"connect_timeout"`
	EnableTransactions     bool          `mapstructure:"enable_transactions"`
}

// PolicyConfig 充电策略引擎的默认配置，对应 spec §4.D 的 profileConfig
type PolicyConfig struct {
	ChargeIfPriceBelow float64 `mapstructure:"charge_if_price_below"`
	MaxEnergyKwh       float64 `mapstructure:"max_energy_kwh"`
	AllowPeakHours     bool    `mapstructure:"allow_peak_hours"`
	PeakHours          []int   `mapstructure:"peak_hours"`
}

// CSMSConfig 模拟站点拨号的中央系统配置
type CSMSConfig struct {
	URL               string        `mapstructure:"url"`
	BasePath          string        `mapstructure:"base_path"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// RegistryConfig 跨进程归属登记表配置（Redis 实现，空地址时退化为内存实现）
type RegistryConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// EventSinkConfig 事件接收端配置（Kafka 实现，brokers 为空时退化为 no-op）
type EventSinkConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// CacheConfig 综合计划查询缓存配置
type CacheConfig struct {
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// Load 加载配置 - Spring Boot风格：多环境配置
func Load() (*Config, error) {
	// 1. 设置默认值
	setDefaults()

	// 2. 确定运行环境
	profile := getProfile()
	fmt.Printf("Loading configuration for profile: %s\n", profile)

	// 3. 加载默认配置文件 application.yaml
	if err := loadConfigFile("application"); err != nil {
		fmt.Printf("Warning: Could not load default config file: %v\n", err)
	}

	// 4. 加载环境特定配置文件 application-{profile}.yaml
	if profile != "" {
		configName := fmt.Sprintf("application-%s", profile)
		if err := loadConfigFile(configName); err != nil {
			fmt.Printf("Warning: Could not load profile config file %s: %v\n", configName, err)
		}
	}

	// 5. 环境变量覆盖配置文件（最高优先级）
	setupEnvironmentVariables()

	// 6. 解析最终配置
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 7. 设置运行时环境信息
	cfg.App.Profile = profile

	// 8. 打印配置加载信息（调试用）
	printConfigInfo(&cfg)

	return &cfg, nil
}

// getProfile 获取运行环境配置
func getProfile() string {
	if profile := os.Getenv("APP_PROFILE"); profile != "" {
		return profile
	}
	if profile := viper.GetString("app.profile"); profile != "" {
		return profile
	}
	return "local"
}

// loadConfigFile 加载指定的配置文件
func loadConfigFile(configName string) error {
	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	return viper.MergeInConfig()
}

// setupEnvironmentVariables 设置环境变量映射
func setupEnvironmentVariables() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.BindEnv("registry.addr", "REGISTRY_ADDR")
	viper.BindEnv("csms.url", "CSMS_URL")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("app.profile", "APP_PROFILE")

	if eventSinkBrokers := os.Getenv("EVENT_SINK_BROKERS"); eventSinkBrokers != "" {
		brokers := strings.Split(eventSinkBrokers, ",")
		for i, broker := range brokers {
			brokers[i] = strings.TrimSpace(broker)
		}
		viper.Set("event_sink.brokers", brokers)
	}
}

// printConfigInfo 打印配置加载信息（调试用）
func printConfigInfo(cfg *Config) {
	fmt.Printf("=== Configuration Loaded ===\n")

	fmt.Printf("App:\n")
	fmt.Printf("  Name: %s\n", cfg.App.Name)
	fmt.Printf("  Version: %s\n", cfg.App.Version)
	fmt.Printf("  Profile: %s\n", cfg.App.Profile)

	fmt.Printf("Fleet:\n")
	fmt.Printf("  Station Count: %d\n", cfg.Fleet.StationCount)
	fmt.Printf("  Profile Name: %s\n", cfg.Fleet.ProfileName)
	fmt.Printf("  Scale Step: %d\n", cfg.Fleet.ScaleStep)

	fmt.Printf("Station:\n")
	fmt.Printf("  Idle: [%v, %v]\n", cfg.Station.IdleMin, cfg.Station.IdleMax)
	fmt.Printf("  Sample Interval: [%v, %v]\n", cfg.Station.SampleIntervalMin, cfg.Station.SampleIntervalMax)
	fmt.Printf("  Offline Probability: %v\n", cfg.Station.OfflineProbability)
	fmt.Printf("  Energy Step Wh: [%v, %v]\n", cfg.Station.EnergyStepMinWh, cfg.Station.EnergyStepMaxWh)
	fmt.Printf("  Connect Timeout: %v\n", cfg.Station.ConnectTimeout)

	fmt.Printf("CSMS:\n")
	fmt.Printf("  URL: %s\n", cfg.CSMS.URL)
	fmt.Printf("  Base Path: %s\n", cfg.CSMS.BasePath)
	fmt.Printf("  Call Timeout: %v\n", cfg.CSMS.CallTimeout)
	fmt.Printf("  Heartbeat Interval: %v\n", cfg.CSMS.HeartbeatInterval)

	fmt.Printf("Registry:\n")
	fmt.Printf("  Address: %s\n", cfg.Registry.Addr)

	fmt.Printf("EventSink:\n")
	fmt.Printf("  Brokers: %v\n", cfg.EventSink.Brokers)
	fmt.Printf("  Topic: %s\n", cfg.EventSink.Topic)

	fmt.Printf("Log:\n")
	fmt.Printf("  Level: %s\n", cfg.Log.Level)
	fmt.Printf("  Format: %s\n", cfg.Log.Format)
	fmt.Printf("  Output: %s\n", cfg.Log.Output)

	fmt.Printf("============================\n")
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("app.name", "station-fleet-simulator")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.profile", "local")

	viper.SetDefault("fleet.station_count", 10)
	viper.SetDefault("fleet.profile_name", "default")
	viper.SetDefault("fleet.scale_step", 1)

	viper.SetDefault("station.idle_min", "5s")
	viper.SetDefault("station.idle_max", "30s")
	viper.SetDefault("station.sample_interval_min", "5s")
	viper.SetDefault("station.sample_interval_max", "15s")
	viper.SetDefault("station.offline_probability", 0.02)
	viper.SetDefault("station.offline_duration", "30s")
	viper.SetDefault("station.energy_step_min_wh", 100.0)
	viper.SetDefault("station.energy_step_max_wh", 500.0)
	viper.SetDefault("station.id_tag_pool", []string{"RFID000001", "RFID000002", "RFID000003"})
	viper.SetDefault("station.connect_timeout", "2s")
	viper.SetDefault("station.enable_transactions", true)

	viper.SetDefault("policy.charge_if_price_below", 0.30)
	viper.SetDefault("policy.max_energy_kwh", 50.0)
	viper.SetDefault("policy.allow_peak_hours", false)
	viper.SetDefault("policy.peak_hours", []int{17, 18, 19, 20})

	viper.SetDefault("csms.url", "ws://localhost:9000")
	viper.SetDefault("csms.base_path", "ocpp")
	viper.SetDefault("csms.call_timeout", "30s")
	viper.SetDefault("csms.heartbeat_interval", "300s")

	viper.SetDefault("registry.addr", "")
	viper.SetDefault("registry.db", 0)
	viper.SetDefault("registry.ttl", "30s")

	viper.SetDefault("event_sink.brokers", []string{})
	viper.SetDefault("event_sink.topic", "station-events")

	viper.SetDefault("cache.max_size", 1000)
	viper.SetDefault("cache.ttl", "5s")
	viper.SetDefault("cache.cleanup_interval", "1m")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
}

// IsProduction 判断是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Profile == "prod"
}

// IsDevelopment 判断是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.App.Profile == "dev"
}
