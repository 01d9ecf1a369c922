package publishers

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/moesif/moesifapi-go"
	"github.com/moesif/moesifapi-go/models"

	"github.com/patsnapops/piam-sub000/internal/analytics/dto"
	"github.com/patsnapops/piam-sub000/internal/config"
	"github.com/patsnapops/piam-sub000/internal/metrics"
)

const anonymous = "anonymous"

// Moesif represents a Moesif publisher.
type Moesif struct {
	cfg    *config.PublisherConfig
	api    moesifapi.API
	events []*models.EventModel
	mu     sync.Mutex
}

// MoesifConfig holds the configs specific for the Moesif publisher.
type MoesifConfig struct {
	ApplicationID      string `mapstructure:"application_id" default:""`
	PublishInterval    int    `mapstructure:"publish_interval" default:"5"`
	EventQueueSize     int    `mapstructure:"event_queue_size" default:"10000"`
	BatchSize          int    `mapstructure:"batch_size" default:"50"`
	TimerWakeupSeconds int    `mapstructure:"timer_wakeup_seconds" default:"3"`
}

// NewMoesif creates a new Moesif publisher.
func NewMoesif(pubCfg *config.PublisherConfig) *Moesif {
	moesifCfg := &MoesifConfig{}

	err := mapstructure.Decode(pubCfg.Settings, moesifCfg)
	if err != nil {
		slog.Error("error decoding moesif publisher config", "error", err)
		return nil
	}

	moesifApplicationID := os.Getenv("MOESIF_KEY")
	if moesifApplicationID == "" {
		moesifApplicationID = moesifCfg.ApplicationID
	}

	apiClient := moesifapi.NewAPI(moesifApplicationID, nil, moesifCfg.EventQueueSize, moesifCfg.BatchSize, moesifCfg.TimerWakeupSeconds)
	moesif := &Moesif{
		cfg:    pubCfg,
		events: []*models.EventModel{},
		api:    apiClient,
	}
	go func() {
		for {
			time.Sleep(time.Duration(moesifCfg.PublishInterval) * time.Second)
			moesif.mu.Lock()
			if len(moesif.events) > 0 {
				slog.Info(fmt.Sprintf("publishing %d events to moesif", len(moesif.events)))
				if err := moesif.api.QueueEvents(moesif.events); err != nil {
					slog.Error("error publishing events to moesif", "error", err)
					metrics.AnalyticsErrorsTotal.WithLabelValues("moesif").Inc()
				}
				moesif.events = []*models.EventModel{}
			}
			moesif.mu.Unlock()
		}
	}()
	return moesif
}

// Publish publishes an event to Moesif.
func (m *Moesif) Publish(event *dto.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uri := event.Bucket
	if event.Key != "" {
		uri = event.Bucket + "/" + event.Key
	}

	req := models.EventRequestModel{
		Time:      &event.RequestTimestamp,
		Uri:       uri,
		Verb:      event.Action,
		IpAddress: &event.SourceIP,
		Headers: map[string]interface{}{
			"User-Agent": event.UserAgent,
		},
		Body: nil,
	}

	respTime := event.RequestTimestamp.Add(time.Duration(event.LatencyMs) * time.Millisecond)
	rsp := models.EventResponseModel{
		Time:   &respTime,
		Status: event.ResponseCode,
	}

	metadataMap := make(map[string]interface{})
	metadataMap["correlationId"] = event.CorrelationID
	metadataMap["account"] = event.Account
	metadataMap["action"] = event.Action
	metadataMap["region"] = event.Region
	for k, v := range event.Properties {
		metadataMap[k] = v
	}

	userID := event.User
	if userID == "" {
		userID = anonymous
	}
	eventModel := &models.EventModel{
		Request:  req,
		Response: rsp,
		UserId:   &userID,
		Metadata: metadataMap,
	}
	m.events = append(m.events, eventModel)
	slog.Debug(fmt.Sprintf("event added to moesif queue, queue size: %d", len(m.events)))
}
