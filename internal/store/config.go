package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // schedule.timezone must resolve on hosts without zoneinfo

	"gopkg.in/yaml.v3"

	"ai-grid-trader/internal/llm"
)

// SymbolConfig is one traded instrument. Weight is its share of the total
// grid capital; InstrumentToken is only needed for the Kite data source.
type SymbolConfig struct {
	Symbol          string  `yaml:"symbol"`
	Name            string  `yaml:"name"`
	Weight          float64 `yaml:"weight"`
	Strategy        string  `yaml:"strategy"`
	InstrumentToken int     `yaml:"instrument_token"`
}

// DefaultSymbols is the starter basket: two Taiwan dividend ETFs and one
// large cap, splitting the capital roughly in thirds.
func DefaultSymbols() []SymbolConfig {
	return []SymbolConfig{
		{Symbol: "00929.TW", Name: "00929 科技優息", Weight: 0.33, Strategy: "grid"},
		{Symbol: "2317.TW", Name: "2317 鴻海", Weight: 0.34, Strategy: "grid"},
		{Symbol: "00878.TW", Name: "00878 永續高股息", Weight: 0.33, Strategy: "grid"},
	}
}

type HeadlineSource struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Item     string `yaml:"item"`
	Title    string `yaml:"title"`
	Link     string `yaml:"link"`
	Fallback bool   `yaml:"fallback"`
}

type Config struct {
	Mode       string `yaml:"mode"`        // DRY_RUN or LIVE
	DataSource string `yaml:"data_source"` // YAHOO, KITE or STATIC
	Market     struct {
		Period   string `yaml:"period"`
		Interval string `yaml:"interval"`
	} `yaml:"market"`
	Symbols  []SymbolConfig `yaml:"symbols"`
	Schedule struct {
		Cron               string `yaml:"cron"`
		Timezone           string `yaml:"timezone"`
		SymbolDelaySeconds int    `yaml:"symbol_delay_seconds"`
		RunOnStart         bool   `yaml:"run_on_start"`
		EODCron            string `yaml:"eod_cron"`
		EODCloseTime       string `yaml:"eod_close_time"`
	} `yaml:"schedule"`
	Grid struct {
		Capital       float64 `yaml:"capital"`
		Levels        int     `yaml:"levels"`
		GapPct        float64 `yaml:"gap_pct"`
		TakeProfitPct float64 `yaml:"take_profit_pct"`
		StateFile     string  `yaml:"state_file"`
		SaveAttempts  int     `yaml:"save_attempts"`
	} `yaml:"grid"`
	Advisor struct {
		Provider           string   `yaml:"provider"` // GEMINI, OPENAI, CLAUDE or NONE
		Models             []string `yaml:"models"`
		Endpoint           string   `yaml:"endpoint"`
		Temperature        float64  `yaml:"temperature"`
		MaxOutputTokens    int      `yaml:"max_output_tokens"`
		CallTimeoutSeconds int      `yaml:"call_timeout_seconds"`
		MaxAttempts        int      `yaml:"max_attempts"`
		RateLimitBaseSecs  int      `yaml:"rate_limit_base_seconds"`
		RateLimitStepSecs  int      `yaml:"rate_limit_step_seconds"`
		RetryDelaySeconds  int      `yaml:"retry_delay_seconds"`
		CacheTTLMinutes    int      `yaml:"cache_ttl_minutes"`
	} `yaml:"advisor"`
	Risk struct {
		SellPressureTerms []string `yaml:"sell_pressure_terms"`
		SystemicTerms     []string `yaml:"systemic_terms"`
	} `yaml:"risk"`
	Context struct {
		FinMind struct {
			Enabled bool   `yaml:"enabled"`
			BaseURL string `yaml:"base_url"`
		} `yaml:"finmind"`
		USMarket struct {
			Enabled    bool `yaml:"enabled"`
			TTLMinutes int  `yaml:"ttl_minutes"`
		} `yaml:"us_market"`
		Headlines struct {
			Enabled        bool             `yaml:"enabled"`
			MaxHeadlines   int              `yaml:"max_headlines"`
			CacheMinutes   int              `yaml:"cache_minutes"`
			TimeoutSeconds int              `yaml:"timeout_seconds"`
			Sources        []HeadlineSource `yaml:"sources"`
		} `yaml:"headlines"`
	} `yaml:"context"`
	DecisionLog struct {
		Dir           string `yaml:"dir"`
		SQLitePath    string `yaml:"sqlite_path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"decision_log"`
	Notify struct {
		Discord bool   `yaml:"discord"`
		Stdout  bool   `yaml:"stdout"`
		Title   string `yaml:"title"`
	} `yaml:"notify"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// SymbolCapital returns capital x weight per symbol.
func (c *Config) SymbolCapital() map[string]float64 {
	out := make(map[string]float64, len(c.Symbols))
	for _, s := range c.Symbols {
		out[s.Symbol] = c.Grid.Capital * s.Weight
	}
	return out
}

// SymbolDelay is the pause between symbols inside one cycle.
func (c *Config) SymbolDelay() time.Duration {
	return time.Duration(c.Schedule.SymbolDelaySeconds) * time.Second
}

// Location resolves Schedule.Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Schedule.Timezone)
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	switch c.DataSource {
	case "YAHOO", "KITE", "STATIC":
	default:
		return fmt.Errorf("invalid data_source '%s': must be 'YAHOO', 'KITE' or 'STATIC'", c.DataSource)
	}
	if len(c.Symbols) == 0 {
		return errors.New("symbols cannot be empty")
	}
	seen := make(map[string]bool, len(c.Symbols))
	weights := 0.0
	for _, s := range c.Symbols {
		if s.Symbol == "" {
			return errors.New("symbol entry without a symbol")
		}
		if seen[s.Symbol] {
			return fmt.Errorf("duplicate symbol %s", s.Symbol)
		}
		seen[s.Symbol] = true
		if s.Weight <= 0 {
			return fmt.Errorf("symbol %s: weight must be positive, got %.2f", s.Symbol, s.Weight)
		}
		if c.DataSource == "KITE" && s.InstrumentToken == 0 {
			return fmt.Errorf("symbol %s: instrument_token required for KITE data", s.Symbol)
		}
		weights += s.Weight
	}
	if weights > 1.0001 {
		return fmt.Errorf("symbol weights sum to %.2f, must not exceed 1", weights)
	}
	if c.Grid.Capital <= 0 {
		return fmt.Errorf("grid.capital must be positive, got %.2f", c.Grid.Capital)
	}
	if c.Grid.Levels <= 0 {
		return fmt.Errorf("grid.levels must be positive, got %d", c.Grid.Levels)
	}
	if c.Grid.GapPct <= 0 || c.Grid.GapPct*float64(c.Grid.Levels) >= 1 {
		return fmt.Errorf("grid.gap_pct %.4f x %d levels must stay within (0,1)", c.Grid.GapPct, c.Grid.Levels)
	}
	if c.Grid.TakeProfitPct <= 0 {
		return fmt.Errorf("grid.take_profit_pct must be positive, got %.4f", c.Grid.TakeProfitPct)
	}
	switch c.Advisor.Provider {
	case "GEMINI", "OPENAI", "CLAUDE", "NONE":
	default:
		return fmt.Errorf("advisor.provider must be 'GEMINI', 'OPENAI', 'CLAUDE' or 'NONE', got '%s'", c.Advisor.Provider)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	c.DataSource = strings.ToUpper(c.DataSource)
	if c.DataSource == "" {
		c.DataSource = "YAHOO"
	}
	if c.Market.Period == "" {
		c.Market.Period = "1y"
	}
	if c.Market.Interval == "" {
		c.Market.Interval = "1d"
	}
	if len(c.Symbols) == 0 {
		c.Symbols = DefaultSymbols()
	}
	for i := range c.Symbols {
		if c.Symbols[i].Strategy == "" {
			c.Symbols[i].Strategy = "grid"
		}
	}

	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "*/10 9-13 * * 1-5"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Taipei"
	}
	if c.Schedule.SymbolDelaySeconds == 0 {
		c.Schedule.SymbolDelaySeconds = 8
	}
	if c.Schedule.EODCron == "" {
		c.Schedule.EODCron = "45 13 * * 1-5"
	}
	if c.Schedule.EODCloseTime == "" {
		c.Schedule.EODCloseTime = "13:40"
	}

	if c.Grid.Capital == 0 {
		c.Grid.Capital = 10000
	}
	if c.Grid.Levels == 0 {
		c.Grid.Levels = 5
	}
	if c.Grid.GapPct == 0 {
		c.Grid.GapPct = 0.03
	}
	if c.Grid.TakeProfitPct == 0 {
		c.Grid.TakeProfitPct = 0.05
	}
	if c.Grid.StateFile == "" {
		c.Grid.StateFile = "grid_state.json"
	}
	if c.Grid.SaveAttempts == 0 {
		c.Grid.SaveAttempts = 3
	}

	c.Advisor.Provider = strings.ToUpper(c.Advisor.Provider)
	if c.Advisor.Provider == "" {
		c.Advisor.Provider = "GEMINI"
	}
	if len(c.Advisor.Models) == 0 {
		c.Advisor.Models = llm.DefaultModels(c.Advisor.Provider)
	}
	if c.Advisor.CacheTTLMinutes == 0 {
		c.Advisor.CacheTTLMinutes = 15
	}

	if c.Context.USMarket.TTLMinutes == 0 {
		c.Context.USMarket.TTLMinutes = 60
	}
	if c.Context.Headlines.MaxHeadlines == 0 {
		c.Context.Headlines.MaxHeadlines = 5
	}
	if c.Context.Headlines.CacheMinutes == 0 {
		c.Context.Headlines.CacheMinutes = 15
	}
	if c.Context.Headlines.TimeoutSeconds == 0 {
		c.Context.Headlines.TimeoutSeconds = 20
	}

	if c.DecisionLog.Dir == "" {
		c.DecisionLog.Dir = "logs"
	}
	if c.DecisionLog.RetentionDays == 0 {
		c.DecisionLog.RetentionDays = 30
	}
	if c.Notify.Title == "" {
		c.Notify.Title = "AI grid report"
	}
}
