package infrastructure

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// InitNATS connects to NATS and ensures the ENGINE stream exists. Execution
// events for run <id> are published to "engine.events.<id>".
func InitNATS(url string, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, nil, err
	}

	cfg := &nats.StreamConfig{
		Name:     "ENGINE",
		Subjects: []string{"engine.events.*"},
	}
	if _, err = js.AddStream(cfg); err != nil {
		if _, err = js.UpdateStream(cfg); err != nil {
			logger.Warn("failed to create or update stream", zap.Error(err))
		}
	}

	return nc, js, nil
}
