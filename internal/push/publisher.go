package push

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"quant-engine/internal/engine"
)

// Publisher forwards a run's execution events to its JetStream subject.
type Publisher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

func NewPublisher(js nats.JetStreamContext, logger *zap.Logger) *Publisher {
	return &Publisher{js: js, logger: logger}
}

// PublishRun drains the event channel into "engine.events.<runID>". It
// returns when the channel closes, so it is normally run as a goroutine for
// the lifetime of the engine run.
func (p *Publisher) PublishRun(runID string, events <-chan engine.Event) {
	subject := SubjectPrefix + runID
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.logger.Error("event marshal failed", zap.String("run_id", runID), zap.Error(err))
			continue
		}
		if _, err := p.js.Publish(subject, payload); err != nil {
			p.logger.Error("event publish failed", zap.String("subject", subject), zap.Error(err))
		}
	}
}
