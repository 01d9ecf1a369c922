// Package analytics publishes one Event per proxied request whose matched
// policy effect carried an emit_event.metric sink, fanning it out to every
// configured publisher (Moesif today).
package analytics

import (
	"log/slog"

	"github.com/patsnapops/piam-sub000/internal/analytics/dto"
	analyticspublishers "github.com/patsnapops/piam-sub000/internal/analytics/publishers"
	"github.com/patsnapops/piam-sub000/internal/config"
	"github.com/patsnapops/piam-sub000/internal/metrics"
)

// Analytics fans a completed request's Event out to every enabled publisher.
type Analytics struct {
	cfg        *config.Config
	publishers []analyticspublishers.Publisher
}

// NewAnalytics constructs the publisher set named in cfg.Analytics, skipping
// any publisher whose type is unknown or which fails to configure.
func NewAnalytics(cfg *config.Config) *Analytics {
	publishers := make([]analyticspublishers.Publisher, 0)
	if cfg != nil && cfg.Analytics.Enabled {
		for _, publisherConfig := range cfg.Analytics.Publishers {
			if !publisherConfig.Enabled {
				continue
			}
			switch publisherConfig.Type {
			case "moesif":
				pc := publisherConfig
				if publisher := analyticspublishers.NewMoesif(&pc); publisher != nil {
					publishers = append(publishers, publisher)
					slog.Info("moesif analytics publisher added")
				}
			default:
				slog.Warn("unknown analytics publisher type", "type", publisherConfig.Type)
			}
		}
	}
	if len(publishers) == 0 {
		slog.Debug("no analytics publishers configured, events will not be published")
	}
	return &Analytics{cfg: cfg, publishers: publishers}
}

// Record publishes event to every configured publisher, recovering from a
// publisher panic so one misbehaving sink can't take down request handling.
func (a *Analytics) Record(event *dto.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered while publishing analytics event", "error", r)
		}
	}()
	for _, publisher := range a.publishers {
		publisher.Publish(event)
		metrics.AnalyticsPublishedTotal.WithLabelValues(event.MetricAddress).Inc()
	}
}
