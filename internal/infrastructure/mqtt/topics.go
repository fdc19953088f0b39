package mqtt

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "graystore"

// Topics builds Gray Store MQTT topics under a prefix.
//
//	topics := mqtt.Topics{Prefix: "graystore"}
//	topics.Checkpoint() // "graystore/checkpoint"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Status returns the retained online/offline status topic.
//
// Example: graystore/system/status
func (t Topics) Status() string {
	return t.prefix() + "/system/status"
}

// Checkpoint returns the topic checkpoint results are published to.
//
// Example: graystore/checkpoint
func (t Topics) Checkpoint() string {
	return t.prefix() + "/checkpoint"
}

// Reconfigured returns the topic announcing a database picked up a new
// configuration chain.
//
// Example: graystore/event/reconfigured
func (t Topics) Reconfigured() string {
	return t.prefix() + "/event/reconfigured"
}

// CheckpointCommand returns the topic on which checkpoint requests are
// received. The payload is a JSON array of paths, or empty for all.
//
// Example: graystore/command/checkpoint
func (t Topics) CheckpointCommand() string {
	return t.prefix() + "/command/checkpoint"
}

// All returns a pattern matching every Gray Store topic.
//
// Pattern: graystore/#
func (t Topics) All() string {
	return t.prefix() + "/#"
}
