package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/graystore/internal/checkpoint"
)

// JSONPublisher is the subset of Client used by the checkpoint bridge.
type JSONPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// CheckpointMessage is the payload published for each checkpoint attempt.
type CheckpointMessage struct {
	Path       string    `json:"path"`
	Started    time.Time `json:"started"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// ReconfiguredMessage is the payload published after a database picks up a
// new configuration chain.
type ReconfiguredMessage struct {
	Path    string   `json:"path"`
	Configs []string `json:"configs"`
	Error   string   `json:"error,omitempty"`
}

// CheckpointNotifier publishes checkpoint results to Topics.Checkpoint.
type CheckpointNotifier struct {
	pub    JSONPublisher
	topics Topics
	logger Logger
}

var _ checkpoint.Notifier = (*CheckpointNotifier)(nil)

// NewCheckpointNotifier creates a notifier that publishes through pub.
// A nil logger discards publish failures.
func NewCheckpointNotifier(pub JSONPublisher, topics Topics, logger Logger) *CheckpointNotifier {
	return &CheckpointNotifier{pub: pub, topics: topics, logger: logger}
}

// CheckpointDone implements checkpoint.Notifier.
func (n *CheckpointNotifier) CheckpointDone(r checkpoint.Result) {
	msg := CheckpointMessage{
		Path:       r.Path,
		Started:    r.Started.UTC(),
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		msg.Error = r.Err.Error()
	}
	if err := n.pub.PublishJSON(n.topics.Checkpoint(), msg, false); err != nil && n.logger != nil {
		n.logger.Warn("publishing checkpoint result failed", "path", r.Path, "error", err)
	}
}

// Reconfigured publishes a ReconfiguredMessage for path.
func (n *CheckpointNotifier) Reconfigured(path string, configs []string, reconfErr error) {
	msg := ReconfiguredMessage{Path: path, Configs: configs}
	if reconfErr != nil {
		msg.Error = reconfErr.Error()
	}
	if err := n.pub.PublishJSON(n.topics.Reconfigured(), msg, false); err != nil && n.logger != nil {
		n.logger.Warn("publishing reconfigure event failed", "path", path, "error", err)
	}
}

// CheckpointCommandHandler returns a MessageHandler for
// Topics.CheckpointCommand. The payload is a JSON array of database paths;
// an empty payload or empty array requests every path returned by all.
func CheckpointCommandHandler(sweep func(paths ...string), all func() []string) MessageHandler {
	return func(_ string, payload []byte) error {
		paths, err := parseCheckpointCommand(payload)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			paths = all()
		}
		sweep(paths...)
		return nil
	}
}

func parseCheckpointCommand(payload []byte) ([]string, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var paths []string
	if err := json.Unmarshal(payload, &paths); err != nil {
		return nil, fmt.Errorf("decoding checkpoint command: %w", err)
	}
	return paths, nil
}
