package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "ROUTEPLAY_"

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Server   Server   `yaml:"server"`
	Dataset  Dataset  `yaml:"dataset"`
	Upstream Upstream `yaml:"upstream"`
	Playback Playback `yaml:"playback"`
	Cache    Cache    `yaml:"cache"`
	// Reserved vertices (dispatch origin, hospitals) cannot be picked as
	// incidents. 0-based.
	Reserved []int `yaml:"reserved"`
	MQTT     MQTT  `yaml:"mqtt"`
	Log      Log   `yaml:"log"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

// Dataset names where the coordinate table comes from. JSON wins over OSM,
// OSM over MySQL.
type Dataset struct {
	JSON     string `yaml:"json"`
	OSM      string `yaml:"osm"`
	MySQLDSN string `yaml:"dsn"`
}

type Upstream struct {
	BaseURL       string        `yaml:"url"`
	IncidentField string        `yaml:"incident_field"`
	Aliases       []string      `yaml:"aliases"`
	Timeout       time.Duration `yaml:"timeout"`
}

type Playback struct {
	Step  float64       `yaml:"step"`
	Frame time.Duration `yaml:"frame"`
	Pause time.Duration `yaml:"pause"`
}

type Cache struct {
	Capacity int `yaml:"capacity"`
}

type MQTT struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type Log struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		Server: Server{Addr: ":8080"},
		Upstream: Upstream{
			BaseURL:       "https://uern-projeto-rotas-samu.onrender.com/api/rota-completa",
			IncidentField: "ocurrenceVertex",
			Aliases:       []string{"ocourrenceVertex"},
			Timeout:       30 * time.Second,
		},
		Playback: Playback{Step: 0.02, Frame: 16 * time.Millisecond, Pause: 2 * time.Second},
		Cache:    Cache{Capacity: 256},
		Reserved: []int{2, 66, 105},
		MQTT:     MQTT{Topic: "routeplay/frames"},
		Log:      Log{Level: "info"},
	}
}

// Load resolves the configuration for the binary called name. Later layers
// win: defaults, YAML file (-config), .env file (-env), environment, flags.
// extra registers binary specific flags on the same set.
func Load(name string, args []string, extra ...func(*flag.FlagSet)) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var (
		file, envFile string
		fl            Config
		reserved      string
	)
	fs.StringVar(&file, "config", "", "YAML config file")
	fs.StringVar(&envFile, "env", ".env", "dotenv file; missing is fine")
	fs.StringVar(&fl.Server.Addr, "addr", cfg.Server.Addr, "HTTP bind address")
	fs.StringVar(&fl.Dataset.JSON, "dataset", "", "dataset JSON file")
	fs.StringVar(&fl.Dataset.OSM, "osm", "", "OSM XML file")
	fs.StringVar(&fl.Dataset.MySQLDSN, "dsn", "", "MySQL DSN")
	fs.StringVar(&fl.Upstream.BaseURL, "upstream", cfg.Upstream.BaseURL, "route service base URL")
	fs.StringVar(&fl.Upstream.IncidentField, "incident-field", cfg.Upstream.IncidentField, "incident vertex field name")
	fs.DurationVar(&fl.Upstream.Timeout, "upstream-timeout", cfg.Upstream.Timeout, "route service timeout")
	fs.Float64Var(&fl.Playback.Step, "step", cfg.Playback.Step, "segment fraction per frame")
	fs.DurationVar(&fl.Playback.Frame, "frame", cfg.Playback.Frame, "frame interval")
	fs.DurationVar(&fl.Playback.Pause, "pause", cfg.Playback.Pause, "pause at the incident")
	fs.IntVar(&fl.Cache.Capacity, "cache", cfg.Cache.Capacity, "route cache capacity")
	fs.StringVar(&reserved, "reserved", "", "comma separated reserved vertices")
	fs.StringVar(&fl.MQTT.Broker, "mqtt", "", "MQTT broker URL, empty disables publishing")
	fs.StringVar(&fl.MQTT.Topic, "mqtt-topic", cfg.MQTT.Topic, "MQTT topic prefix")
	fs.StringVar(&fl.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	for _, f := range extra {
		f(fs)
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if file != "" {
		if err := cfg.readFile(file); err != nil {
			return Config{}, err
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read %s: %w", envFile, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	var ferr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = fl.Server.Addr
		case "dataset":
			cfg.Dataset = Dataset{JSON: fl.Dataset.JSON}
		case "osm":
			cfg.Dataset = Dataset{OSM: fl.Dataset.OSM}
		case "dsn":
			cfg.Dataset = Dataset{MySQLDSN: fl.Dataset.MySQLDSN}
		case "upstream":
			cfg.Upstream.BaseURL = fl.Upstream.BaseURL
		case "incident-field":
			cfg.Upstream.IncidentField = fl.Upstream.IncidentField
		case "upstream-timeout":
			cfg.Upstream.Timeout = fl.Upstream.Timeout
		case "step":
			cfg.Playback.Step = fl.Playback.Step
		case "frame":
			cfg.Playback.Frame = fl.Playback.Frame
		case "pause":
			cfg.Playback.Pause = fl.Playback.Pause
		case "cache":
			cfg.Cache.Capacity = fl.Cache.Capacity
		case "reserved":
			v, err := parseInts(reserved)
			if err != nil {
				ferr = fmt.Errorf("-reserved: %w", err)
			}
			cfg.Reserved = v
		case "mqtt":
			cfg.MQTT.Broker = fl.MQTT.Broker
		case "mqtt-topic":
			cfg.MQTT.Topic = fl.MQTT.Topic
		case "log-level":
			cfg.Log.Level = fl.Log.Level
		}
	})
	if ferr != nil {
		return Config{}, ferr
	}

	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var err error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" && err == nil {
			d, e := time.ParseDuration(v)
			if e != nil {
				err = fmt.Errorf("%s: %w", key, e)
				return
			}
			*dst = d
		}
	}

	str(envPrefix+"ADDR", &c.Server.Addr)
	str(envPrefix+"DATASET_JSON", &c.Dataset.JSON)
	str(envPrefix+"DATASET_OSM", &c.Dataset.OSM)
	str("DB_DSN", &c.Dataset.MySQLDSN)
	str(envPrefix+"UPSTREAM_URL", &c.Upstream.BaseURL)
	str(envPrefix+"UPSTREAM_INCIDENT_FIELD", &c.Upstream.IncidentField)
	dur(envPrefix+"UPSTREAM_TIMEOUT", &c.Upstream.Timeout)
	dur(envPrefix+"PLAYBACK_FRAME", &c.Playback.Frame)
	dur(envPrefix+"PLAYBACK_PAUSE", &c.Playback.Pause)
	str(envPrefix+"MQTT_BROKER", &c.MQTT.Broker)
	str(envPrefix+"MQTT_TOPIC", &c.MQTT.Topic)
	str(envPrefix+"MQTT_CLIENT_ID", &c.MQTT.ClientID)
	str(envPrefix+"LOG_LEVEL", &c.Log.Level)
	if err != nil {
		return err
	}

	if v, ok := lookup(envPrefix + "UPSTREAM_ALIASES"); ok {
		c.Upstream.Aliases = splitList(v)
	}
	if v, ok := lookup(envPrefix + "PLAYBACK_STEP"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sPLAYBACK_STEP: %w", envPrefix, err)
		}
		c.Playback.Step = f
	}
	if v, ok := lookup(envPrefix + "CACHE_CAPACITY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sCACHE_CAPACITY: %w", envPrefix, err)
		}
		c.Cache.Capacity = n
	}
	if v, ok := lookup(envPrefix + "RESERVED"); ok {
		ids, err := parseInts(v)
		if err != nil {
			return fmt.Errorf("%sRESERVED: %w", envPrefix, err)
		}
		c.Reserved = ids
	}
	return nil
}

// Validate checks the settings the server needs.
func (c Config) Validate() error {
	if c.Dataset.JSON == "" && c.Dataset.OSM == "" && c.Dataset.MySQLDSN == "" {
		return fmt.Errorf("%w: no dataset source (json, osm or dsn)", ErrInvalid)
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("%w: upstream url is empty", ErrInvalid)
	}
	if c.Playback.Step <= 0 || c.Playback.Step > 1 {
		return fmt.Errorf("%w: playback step %v not in (0, 1]", ErrInvalid, c.Playback.Step)
	}
	if c.Playback.Frame <= 0 {
		return fmt.Errorf("%w: frame interval must be positive", ErrInvalid)
	}
	if c.Playback.Pause < 0 {
		return fmt.Errorf("%w: pause must not be negative", ErrInvalid)
	}
	for _, v := range c.Reserved {
		if v < 0 {
			return fmt.Errorf("%w: reserved vertex %d", ErrInvalid, v)
		}
	}
	return nil
}

// ReservedSet returns Reserved as a lookup set.
func (c Config) ReservedSet() map[int]bool {
	m := make(map[int]bool, len(c.Reserved))
	for _, v := range c.Reserved {
		m[v] = true
	}
	return m
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInts(s string) ([]int, error) {
	parts := splitList(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
