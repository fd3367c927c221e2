// Package gochannel provides the in-process event transport used by single-binary runs and tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Buffer sizes for the two presets.
const (
	DefaultBuffer = 1024
	TestBuffer    = 16
)

// CreateChannel creates a GoChannel pub/sub for local runs. Publishing never blocks on
// subscribers so a slow progress consumer cannot stall the scheduler.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	return create(gochannel.Config{
		OutputChannelBuffer:            DefaultBuffer,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, logger)
}

// CreateTestChannel keeps messages for late subscribers and blocks until they are acked,
// which makes event assertions deterministic.
func CreateTestChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	return create(gochannel.Config{
		OutputChannelBuffer:            TestBuffer,
		Persistent:                     true,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
}

func create(config gochannel.Config, logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	// The same instance is both publisher and subscriber.
	pubSub := gochannel.NewGoChannel(config, logger)

	return pubSub, pubSub, nil
}
