package telemetry

type Config struct {
	// The OTLP endpoint traces are exported to. Tracing is disabled when empty.
	OTLP OTLP `yaml:"otlp"`
	// The service name to use for the telemetry.
	Package string `yaml:"package"`
	// ID of the service instance.
	ID string `yaml:"id"`
}

type OTLP struct {
	// The host:port of the OTLP receiver. Note that the endpoint must not contain any URL path.
	Host string `yaml:"host"`
	// Secure indicates whether to use TLS when connecting to the OTLP endpoint.
	// HTTPS is used if enabled, HTTP otherwise.
	Secure bool `yaml:"secure"`
}
