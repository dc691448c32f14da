package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReadingPolicy tunes the statistical plausibility checks applied to new
// meter readings. Hard chronological invariants are not tunable.
type ReadingPolicy struct {
	// HistoryWindow caps how many recent readings feed the statistics.
	HistoryWindow int `mapstructure:"historyWindow"`
	// MinHistoryPoints is the minimum number of historical readings
	// required before statistics are computed at all.
	MinHistoryPoints int `mapstructure:"minHistoryPoints"`

	// maxReasonableDaily = max(AverageMultiplier*avg, MedianMultiplier*median,
	// MaxMultiplier*max, AbsoluteFloor).
	AverageMultiplier float64 `mapstructure:"averageMultiplier"`
	MedianMultiplier  float64 `mapstructure:"medianMultiplier"`
	MaxMultiplier     float64 `mapstructure:"maxMultiplier"`
	AbsoluteFloor     float64 `mapstructure:"absoluteFloor"`

	// WarnAverageMultiplier: consumption above avg*multiplier but below the
	// hard ceiling only warns.
	WarnAverageMultiplier float64 `mapstructure:"warnAverageMultiplier"`
	// LowFraction: consumption below avg*fraction warns as unusually low.
	LowFraction float64 `mapstructure:"lowFraction"`
}

// MatcherPolicy tunes receipt-to-purchase matching.
type MatcherPolicy struct {
	MaxBatchSize    int     `mapstructure:"maxBatchSize"`
	HighThreshold   float64 `mapstructure:"highThreshold"`
	MediumThreshold float64 `mapstructure:"mediumThreshold"`
	LowThreshold    float64 `mapstructure:"lowThreshold"`
}

// AnalyticsPolicy tunes trend and anomaly detection.
type AnalyticsPolicy struct {
	// AnomalyDeviation is the relative deviation from the overall average
	// beyond which a receipt is flagged (0.20 = 20%).
	AnomalyDeviation float64 `mapstructure:"anomalyDeviation"`
	MediumSeverity   float64 `mapstructure:"mediumSeverity"`
	HighSeverity     float64 `mapstructure:"highSeverity"`
	// TrendStabilityPct: absolute percentage change below which the trend
	// direction reports stable.
	TrendStabilityPct   float64 `mapstructure:"trendStabilityPct"`
	MinAnomalyReceipts  int     `mapstructure:"minAnomalyReceipts"`
	MinSeasonalReceipts int     `mapstructure:"minSeasonalReceipts"`
}

// Policy bundles every tunable threshold in the reconciliation engine.
type Policy struct {
	Reading   ReadingPolicy   `mapstructure:"reading"`
	Matcher   MatcherPolicy   `mapstructure:"matcher"`
	Analytics AnalyticsPolicy `mapstructure:"analytics"`
}

func DefaultPolicy() Policy {
	return Policy{
		Reading: ReadingPolicy{
			HistoryWindow:         30,
			MinHistoryPoints:      2,
			AverageMultiplier:     3,
			MedianMultiplier:      4,
			MaxMultiplier:         1.5,
			AbsoluteFloor:         50,
			WarnAverageMultiplier: 2,
			LowFraction:           0.1,
		},
		Matcher: MatcherPolicy{
			MaxBatchSize:    500,
			HighThreshold:   80,
			MediumThreshold: 60,
			LowThreshold:    40,
		},
		Analytics: AnalyticsPolicy{
			AnomalyDeviation:    0.20,
			MediumSeverity:      0.30,
			HighSeverity:        0.40,
			TrendStabilityPct:   5,
			MinAnomalyReceipts:  3,
			MinSeasonalReceipts: 12,
		},
	}
}

// PolicyHolder exposes the current policy and hot-reloads it when the
// policy file changes on disk.
type PolicyHolder struct {
	current atomic.Value // holds Policy
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/wattshare/config")
	v.AddConfigPath("/etc/wattshare")
	v.AddConfigPath(".")

	v.SetEnvPrefix("WATTSHARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setPolicyDefaults(v, DefaultPolicy())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Policy
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	if err := validatePolicy(cfg); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			zap.L().Warn("policy reload failed", zap.Error(err))
			return
		}
		if err := validatePolicy(updated); err != nil {
			zap.L().Warn("invalid policy config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

// NewStaticPolicyHolder wraps a fixed policy, bypassing file watching.
// Intended for tests exercising threshold boundaries.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func setPolicyDefaults(v *viper.Viper, def Policy) {
	v.SetDefault("policy.reading.historyWindow", def.Reading.HistoryWindow)
	v.SetDefault("policy.reading.minHistoryPoints", def.Reading.MinHistoryPoints)
	v.SetDefault("policy.reading.averageMultiplier", def.Reading.AverageMultiplier)
	v.SetDefault("policy.reading.medianMultiplier", def.Reading.MedianMultiplier)
	v.SetDefault("policy.reading.maxMultiplier", def.Reading.MaxMultiplier)
	v.SetDefault("policy.reading.absoluteFloor", def.Reading.AbsoluteFloor)
	v.SetDefault("policy.reading.warnAverageMultiplier", def.Reading.WarnAverageMultiplier)
	v.SetDefault("policy.reading.lowFraction", def.Reading.LowFraction)
	v.SetDefault("policy.matcher.maxBatchSize", def.Matcher.MaxBatchSize)
	v.SetDefault("policy.matcher.highThreshold", def.Matcher.HighThreshold)
	v.SetDefault("policy.matcher.mediumThreshold", def.Matcher.MediumThreshold)
	v.SetDefault("policy.matcher.lowThreshold", def.Matcher.LowThreshold)
	v.SetDefault("policy.analytics.anomalyDeviation", def.Analytics.AnomalyDeviation)
	v.SetDefault("policy.analytics.mediumSeverity", def.Analytics.MediumSeverity)
	v.SetDefault("policy.analytics.highSeverity", def.Analytics.HighSeverity)
	v.SetDefault("policy.analytics.trendStabilityPct", def.Analytics.TrendStabilityPct)
	v.SetDefault("policy.analytics.minAnomalyReceipts", def.Analytics.MinAnomalyReceipts)
	v.SetDefault("policy.analytics.minSeasonalReceipts", def.Analytics.MinSeasonalReceipts)
}

func validatePolicy(cfg Policy) error {
	if cfg.Reading.HistoryWindow <= 0 {
		return errors.New("policy.reading.historyWindow must be positive")
	}
	if cfg.Reading.MinHistoryPoints < 2 {
		return errors.New("policy.reading.minHistoryPoints must be at least 2")
	}
	if cfg.Reading.AbsoluteFloor < 0 {
		return errors.New("policy.reading.absoluteFloor cannot be negative")
	}
	if cfg.Matcher.MaxBatchSize <= 0 {
		return errors.New("policy.matcher.maxBatchSize must be positive")
	}
	if !(cfg.Matcher.HighThreshold > cfg.Matcher.MediumThreshold &&
		cfg.Matcher.MediumThreshold > cfg.Matcher.LowThreshold) {
		return errors.New("policy.matcher thresholds must be strictly descending")
	}
	if cfg.Analytics.AnomalyDeviation <= 0 {
		return errors.New("policy.analytics.anomalyDeviation must be positive")
	}
	return nil
}
