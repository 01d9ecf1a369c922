package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvent_StructFields(t *testing.T) {
	now := time.Now()
	event := &Event{
		RequestTimestamp: now,
		CorrelationID:    "corr-123",
		MetricAddress:    "audit.s3",
		Account:          "us_aws_prod",
		User:             "alice",
		Action:           "GetObject",
		Bucket:           "reports",
		Key:              "2026/q1.csv",
		Region:           "us-east-1",
		SourceIP:         "192.168.1.1",
		UserAgent:        "aws-sdk-go-v2",
		ResponseCode:     200,
		LatencyMs:        42,
		Properties:       map[string]interface{}{"key": "value"},
	}

	assert.Equal(t, now, event.RequestTimestamp)
	assert.Equal(t, "corr-123", event.CorrelationID)
	assert.Equal(t, "us_aws_prod", event.Account)
	assert.Equal(t, "alice", event.User)
	assert.Equal(t, "GetObject", event.Action)
	assert.Equal(t, "reports", event.Bucket)
	assert.Equal(t, "2026/q1.csv", event.Key)
	assert.Equal(t, "us-east-1", event.Region)
	assert.Equal(t, 200, event.ResponseCode)
	assert.Equal(t, int64(42), event.LatencyMs)
	assert.Equal(t, "value", event.Properties["key"])
}

func TestEvent_ZeroValue(t *testing.T) {
	event := &Event{}
	assert.Equal(t, "", event.Account)
	assert.Equal(t, 0, event.ResponseCode)
	assert.Nil(t, event.Properties)
}
