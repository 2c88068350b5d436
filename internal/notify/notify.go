package notify

import (
	"time"

	"go.uber.org/zap"
)

// Kind classifies a notification.
type Kind string

const (
	KindObjectiveCompleted Kind = "OBJECTIVE_COMPLETED"
	KindTeamWon            Kind = "TEAM_WON"
	KindGameAborted        Kind = "GAME_ABORTED"
)

// Notification is a human-visible state change pushed to observers.
// Delivery is best-effort: a dropped notification never rolls back the
// state change that produced it.
type Notification struct {
	Kind        Kind      `json:"kind"`
	InstanceID  string    `json:"instance_id"`
	TeamID      string    `json:"team_id,omitempty"`
	PlayerID    string    `json:"player_id,omitempty"`
	ObjectiveID string    `json:"objective_id,omitempty"`
	Message     string    `json:"message"`
	At          time.Time `json:"at"`
}

// Sink receives notifications from the game engine.
type Sink interface {
	Notify(n Notification)
}

// LogSink writes notifications to the server log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify logs the notification.
func (s *LogSink) Notify(n Notification) {
	s.logger.Info("game notification",
		zap.String("kind", string(n.Kind)),
		zap.String("instance_id", n.InstanceID),
		zap.String("team_id", n.TeamID),
		zap.String("message", n.Message),
	)
}

// Fanout delivers each notification to every registered sink in order.
type Fanout struct {
	sinks []Sink
}

// NewFanout creates a fanout over the given sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Notify forwards the notification to all sinks.
func (f *Fanout) Notify(n Notification) {
	for _, s := range f.sinks {
		s.Notify(n)
	}
}
