package ir

// Version constants for the data model and engine.
const (
	// SchemaVersion is the version of the program and summary formats.
	SchemaVersion = "1"

	// EngineVersion is the type recovery engine version.
	EngineVersion = "0.1.0"
)
