package metrics

// MultiSink fans cycle records out to multiple sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCycle forwards the record to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordCycle(rec CycleRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordCycle(rec); err != nil {
			return err
		}
	}
	return nil
}
