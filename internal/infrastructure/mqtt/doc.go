// Package mqtt provides MQTT connectivity for Gray Store.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - A retained status topic with Last Will and Testament
//   - Publishing checkpoint results and reconfigure events
//   - Receiving checkpoint requests on the command topic
//
// # Topics
//
// All topics live under a configurable prefix (default "graystore"):
//
//	graystore/system/status          retained online/offline status
//	graystore/checkpoint             one message per checkpoint attempt
//	graystore/event/reconfigured     a database picked up a new chain
//	graystore/command/checkpoint     JSON array of paths to checkpoint
//
// # Security Considerations
//
//   - TLS should be enabled when the broker is not local (cfg.Broker.TLS=true)
//   - Credentials should come from GRAYSTORE_MQTT_USERNAME/PASSWORD
//   - Payloads carry database paths but never keys or row data
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sched.AddNotifier(mqtt.NewCheckpointNotifier(client, client.Topics(), logger))
//	err = client.Subscribe(client.Topics().CheckpointCommand(), 1,
//	    mqtt.CheckpointCommandHandler(sched.Sweep, registry.Paths))
package mqtt
