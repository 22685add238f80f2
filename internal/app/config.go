// Package app wires the pipeline: config, the coordinator that owns every
// component, and the health surface.
package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/equityrun/internal/alerts"
	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/news"
)

// Config is the full runtime configuration. Environment variables are
// expanded before unmarshalling, so any value can be written as ${VAR}.
type Config struct {
	Watchlist []string `yaml:"watchlist"`

	Market struct {
		Timezone string   `yaml:"timezone"`
		Holidays []string `yaml:"holidays"`
	} `yaml:"market"`

	Prices struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		RPS     int    `yaml:"rps"`
	} `yaml:"prices"`

	News struct {
		RSS []struct {
			Name string `yaml:"name"`
			URL  string `yaml:"url"`
		} `yaml:"rss"`
		HTML []struct {
			Name      string             `yaml:"name"`
			URL       string             `yaml:"url"`
			Selectors news.HTMLSelectors `yaml:"selectors"`
		} `yaml:"html"`
		PerMinute int `yaml:"per_minute"`
	} `yaml:"news"`

	Scan struct {
		Premarket struct {
			IntervalS int `yaml:"interval_s"`
		} `yaml:"premarket"`
		Intraday struct {
			IntervalS         int     `yaml:"interval_s"`
			PriceThresholdPct float64 `yaml:"price_threshold_pct"`
			VolumeThresholdX  float64 `yaml:"volume_threshold_x"`
			CooldownS         int     `yaml:"cooldown_s"`
			MaxPositions      int     `yaml:"max_positions"`
		} `yaml:"intraday"`
		Opportunity struct {
			MinScore float64 `yaml:"min_score"`
			MinRR    float64 `yaml:"min_rr"`
			Pool     int     `yaml:"pool"`
			Cron     string  `yaml:"cron"`
		} `yaml:"opportunity"`
	} `yaml:"scan"`

	Alerts struct {
		Channels struct {
			Telegram ChannelSwitch `yaml:"telegram"`
			Email    ChannelSwitch `yaml:"email"`
			Desktop  ChannelSwitch `yaml:"desktop"`
			Audio    ChannelSwitch `yaml:"audio"`
		} `yaml:"channels"`
		CooldownS map[string]int        `yaml:"cooldown_s"`
		Telegram  alerts.TelegramConfig `yaml:"telegram"`
		Email     alerts.EmailConfig    `yaml:"email"`
	} `yaml:"alerts"`

	Store struct {
		DSN           string `yaml:"dsn"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"store"`

	Cache struct {
		RedisAddr string `yaml:"redis_addr"`
	} `yaml:"cache"`

	Monitor struct {
		Addr string `yaml:"addr"`
	} `yaml:"monitor"`
}

// ChannelSwitch is a per-channel master switch.
type ChannelSwitch struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultCooldownS per candidate kind, in seconds.
var DefaultCooldownS = map[string]int{
	string(domain.KindPremarketCatalyst): 300,
	string(domain.KindIntradayPump):      300,
	string(domain.KindIntradayExit):      300,
	string(domain.KindOpportunity):       3600,
}

// LoadConfig reads and validates the YAML config. A missing path yields pure
// defaults. Validation failures wrap CONFIG_INVALID and name the offending
// key.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read config %s: %v", domain.ErrConfigInvalid, path, err)
		}
		expanded := os.ExpandEnv(string(b))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config %s: %v", domain.ErrConfigInvalid, path, err)
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Market.Timezone == "" {
		c.Market.Timezone = "America/New_York"
	}
	if c.Prices.RPS <= 0 {
		c.Prices.RPS = 5
	}
	if c.News.PerMinute <= 0 {
		c.News.PerMinute = 10
	}
	if c.Scan.Premarket.IntervalS <= 0 {
		c.Scan.Premarket.IntervalS = 300
	}
	if c.Scan.Intraday.IntervalS <= 0 {
		c.Scan.Intraday.IntervalS = 30
	}
	if c.Scan.Intraday.PriceThresholdPct <= 0 {
		c.Scan.Intraday.PriceThresholdPct = 3
	}
	if c.Scan.Intraday.VolumeThresholdX <= 0 {
		c.Scan.Intraday.VolumeThresholdX = 5
	}
	if c.Scan.Intraday.CooldownS <= 0 {
		c.Scan.Intraday.CooldownS = 300
	}
	if c.Scan.Intraday.MaxPositions <= 0 {
		c.Scan.Intraday.MaxPositions = 3
	}
	if c.Scan.Opportunity.MinScore <= 0 {
		c.Scan.Opportunity.MinScore = 85
	}
	if c.Scan.Opportunity.MinRR <= 0 {
		c.Scan.Opportunity.MinRR = 2.5
	}
	if c.Scan.Opportunity.Pool <= 0 {
		c.Scan.Opportunity.Pool = 10
	}
	if c.Scan.Opportunity.Cron == "" {
		// Daily after the after-hours session ends, exchange time.
		c.Scan.Opportunity.Cron = "15 20 * * *"
	}
	if c.Alerts.CooldownS == nil {
		c.Alerts.CooldownS = map[string]int{}
	}
	for kind, secs := range DefaultCooldownS {
		if _, ok := c.Alerts.CooldownS[kind]; !ok {
			c.Alerts.CooldownS[kind] = secs
		}
	}
	if c.Store.RetentionDays <= 0 {
		c.Store.RetentionDays = 90
	}
	if c.Monitor.Addr == "" {
		c.Monitor.Addr = ":8090"
	}
	// Desktop and audio need no credentials; default on.
	if !c.Alerts.Channels.Desktop.Enabled && !c.Alerts.Channels.Telegram.Enabled &&
		!c.Alerts.Channels.Email.Enabled && !c.Alerts.Channels.Audio.Enabled {
		c.Alerts.Channels.Desktop.Enabled = true
		c.Alerts.Channels.Audio.Enabled = true
		c.Alerts.Channels.Telegram.Enabled = true
		c.Alerts.Channels.Email.Enabled = true
	}
}

// applyEnv fills channel credentials from the environment when the config
// file leaves them empty. Absent credentials leave the channel unconfigured
// rather than failing startup.
func (c *Config) applyEnv() {
	if c.Alerts.Telegram.BotToken == "" {
		c.Alerts.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if c.Alerts.Telegram.ChatID == "" {
		c.Alerts.Telegram.ChatID = os.Getenv("TELEGRAM_CHAT_ID")
	}
	if c.Alerts.Email.Host == "" {
		c.Alerts.Email.Host = os.Getenv("SMTP_HOST")
	}
	if c.Alerts.Email.Port == 0 {
		if p := os.Getenv("SMTP_PORT"); p != "" {
			fmt.Sscanf(p, "%d", &c.Alerts.Email.Port)
		}
	}
	if c.Alerts.Email.Port == 0 {
		c.Alerts.Email.Port = 587
	}
	if c.Alerts.Email.Username == "" {
		c.Alerts.Email.Username = os.Getenv("SMTP_USER")
	}
	if c.Alerts.Email.Password == "" {
		c.Alerts.Email.Password = os.Getenv("SMTP_PASSWORD")
	}
	if c.Alerts.Email.From == "" {
		c.Alerts.Email.From = os.Getenv("SMTP_FROM")
	}
	if len(c.Alerts.Email.To) == 0 {
		if to := os.Getenv("SMTP_TO"); to != "" {
			for _, addr := range strings.Split(to, ",") {
				if addr = strings.TrimSpace(addr); addr != "" {
					c.Alerts.Email.To = append(c.Alerts.Email.To, addr)
				}
			}
		}
	}
}

func (c *Config) validate() error {
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("%w: market.timezone: %v", domain.ErrConfigInvalid, err)
	}
	for _, h := range c.Market.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("%w: market.holidays: %q is not YYYY-MM-DD", domain.ErrConfigInvalid, h)
		}
	}
	for i, raw := range c.Watchlist {
		s, err := domain.NormalizeSymbol(raw)
		if err != nil {
			return fmt.Errorf("%w: watchlist[%d]: %v", domain.ErrConfigInvalid, i, err)
		}
		c.Watchlist[i] = string(s)
	}
	if _, err := cron.ParseStandard(c.Scan.Opportunity.Cron); err != nil {
		return fmt.Errorf("%w: scan.opportunity.cron: %v", domain.ErrConfigInvalid, err)
	}
	for kind, secs := range c.Alerts.CooldownS {
		if secs <= 0 {
			return fmt.Errorf("%w: alerts.cooldown_s.%s: must be positive", domain.ErrConfigInvalid, kind)
		}
	}
	for i, src := range c.News.RSS {
		if src.Name == "" || src.URL == "" {
			return fmt.Errorf("%w: news.rss[%d]: name and url are required", domain.ErrConfigInvalid, i)
		}
	}
	for i, src := range c.News.HTML {
		if src.Name == "" || src.URL == "" {
			return fmt.Errorf("%w: news.html[%d]: name and url are required", domain.ErrConfigInvalid, i)
		}
		if src.Selectors.Item == "" || src.Selectors.Title == "" {
			return fmt.Errorf("%w: news.html[%d].selectors: item and title are required", domain.ErrConfigInvalid, i)
		}
	}
	return nil
}

// Symbols returns the normalized watchlist.
func (c *Config) Symbols() []domain.Symbol {
	out := make([]domain.Symbol, 0, len(c.Watchlist))
	for _, raw := range c.Watchlist {
		out = append(out, domain.Symbol(raw))
	}
	return out
}

// Cooldown returns the dedup bucket width for a candidate kind.
func (c *Config) Cooldown(kind domain.CandidateKind) time.Duration {
	if secs, ok := c.Alerts.CooldownS[string(kind)]; ok {
		return time.Duration(secs) * time.Second
	}
	return 5 * time.Minute
}
