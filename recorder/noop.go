package recorder

// NoopRecorder is used when no audit database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) Record(_ *Event) error                 { return nil }
func (n *NoopRecorder) Recent(_ uint, _ int) ([]Event, error) { return nil, nil }
func (n *NoopRecorder) Close() error                          { return nil }
