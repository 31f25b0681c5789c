package notifications

import (
	"fmt"
	"runtime/debug"
	"time"

	"rockguard/internal/metrics"
	"rockguard/internal/models"
)

// GeneratorConfig controls the synthetic notification generator.
type GeneratorConfig struct {
	Enabled     bool
	Interval    time.Duration
	Probability float64 // chance per tick, 0..1
}

// DefaultGeneratorConfig fires with a 10% chance every 30 seconds.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Enabled:     true,
		Interval:    30 * time.Second,
		Probability: 0.1,
	}
}

// Template produces one synthetic notification.
type Template struct {
	Name  string
	Build func(r Rand) models.Payload
}

// Catalog returns the fixed set of synthetic templates.
func Catalog() []Template {
	return []Template{
		{
			Name: "sensor_alert",
			Build: func(r Rand) models.Payload {
				return models.Payload{
					Type:     models.TypeAlert,
					Title:    "Sensor Alert",
					Message:  "Unusual vibration detected in monitoring station.",
					Location: fmt.Sprintf("Sector %d", r.Intn(10)+1),
					Severity: models.SeverityMedium,
				}
			},
		},
		{
			Name: "system_update",
			Build: func(Rand) models.Payload {
				return models.Payload{
					Type:     models.TypeInfo,
					Title:    "System Update",
					Message:  "Monitoring system has been updated with latest algorithms.",
					Severity: models.SeverityLow,
				}
			},
		},
		{
			Name: "weather_warning",
			Build: func(Rand) models.Payload {
				return models.Payload{
					Type:     models.TypeWarning,
					Title:    "Weather Warning",
					Message:  "Strong winds detected. Increased monitoring recommended.",
					Location: "Mountain Ridge Area",
					Severity: models.SeverityMedium,
				}
			},
		},
	}
}

var catalog = Catalog()

func (s *Store) startGenerator() {
	interval := s.gen.Interval
	if interval <= 0 {
		interval = DefaultGeneratorConfig().Interval
	}

	// created here so a fake clock hands out its ticker before New returns
	t := s.clock.NewTicker(interval)

	s.log.Info().
		Dur("interval", interval).
		Float64("probability", s.gen.Probability).
		Msg("starting synthetic generator")

	s.wg.Add(1)
	go s.runGenerator(t)
}

func (s *Store) runGenerator(t Ticker) {
	defer s.wg.Done()
	defer t.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-t.C():
			s.safeTick()
		}
	}
}

// safeTick runs one tick, recovering a panic so the next tick still runs.
func (s *Store) safeTick() (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("generator panic recovered")
			metrics.PanicsRecovered.WithLabelValues("generator").Inc()
			fired = false
		}
	}()
	return s.tick()
}

// tick runs one generator step and reports whether it added a notification.
func (s *Store) tick() bool {
	metrics.GeneratorTicks.Inc()

	if s.rand.Float64() >= s.gen.Probability {
		return false
	}

	tpl := catalog[s.rand.Intn(len(catalog))]
	n := s.AddFrom(OriginGenerator, tpl.Build(s.rand))

	metrics.GeneratorFired.WithLabelValues(tpl.Name).Inc()
	s.log.Debug().
		Str("template", tpl.Name).
		Str("notification_id", n.ID).
		Msg("synthetic notification generated")
	return true
}
