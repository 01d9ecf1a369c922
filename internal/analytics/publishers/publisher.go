package publishers

import "github.com/patsnapops/piam-sub000/internal/analytics/dto"

// Publisher represents an analytics publisher.
type Publisher interface {
	Publish(event *dto.Event)
}
