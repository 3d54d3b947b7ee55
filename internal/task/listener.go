package task

import (
	"context"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/event"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/task/entity"
)

// RegisterListeners subscribes the logging listeners for task events.
func RegisterListeners(bus event.Bus, logger *zap.SugaredLogger) {
	bus.Subscribe(EventCreated, logTask(logger, "task created"))
	bus.Subscribe(EventCompleted, logTask(logger, "task completed"))
}

func logTask(logger *zap.SugaredLogger, msg string) event.Handler {
	return func(ctx context.Context, payload any) error {
		t, ok := payload.(*entity.Task)
		if !ok {
			logger.Warnw(msg+" with unexpected payload", "payload", payload)
			return nil
		}
		logger.Infow(msg, "task", t)
		return nil
	}
}
