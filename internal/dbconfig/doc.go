// Package dbconfig applies connection policy to database handles.
//
// A Config is one named, ordered unit of handle setup. A Chain holds a set
// of configs and applies them to a Handle in ascending Order (ties broken by
// registration sequence), stopping at the first failure. Chains run every
// time a handle is opened and again when the owning database is
// reconfigured.
//
// # Built-in Configs
//
//   - Cipher: installs an encryption key and cipher page size (runs first)
//   - Trace: attaches the registered SQL and performance trace sinks
//   - Basic: locking mode, synchronous, WAL journal mode, fullfsync
//   - Tokenize: registers named full-text tokenizers
//   - Checkpoint: forwards large commits to the checkpoint scheduler
//
// Default returns the chain used when nothing else is requested:
// trace, basic and checkpoint.
//
// # Error Handling
//
// A failing config stops the chain and Apply returns a *ConfigError that
// unwraps to the config's own error. A read-only handle whose journal mode is
// already WAL yields a *FatalMisuseError: the handle cannot be used safely
// and callers must close it rather than retry.
//
// # Usage
//
//	chain := dbconfig.Default(traces, scheduler).
//	    With(dbconfig.Cipher(key, 4096)).
//	    With(dbconfig.Tokenize(tokenizers, "porter"))
//
//	if err := chain.Apply(ctx, handle); err != nil {
//	    if dbconfig.IsFatal(err) {
//	        // close the handle, do not retry
//	    }
//	    return err
//	}
package dbconfig
