package mjpeg

// SinkFuncs adapts plain functions to the Sink interface. Nil fields
// are skipped.
type SinkFuncs struct {
	Frame        func(Frame)
	Connectivity func(bool)
}

// OnFrame implements Sink.
func (s SinkFuncs) OnFrame(frame Frame) {
	if s.Frame != nil {
		s.Frame(frame)
	}
}

// OnConnectivity implements Sink.
func (s SinkFuncs) OnConnectivity(connected bool) {
	if s.Connectivity != nil {
		s.Connectivity(connected)
	}
}

// ChanSink adapts channels to the Sink interface with drop-on-full
// semantics: a full channel drops the event rather than blocking, the
// same policy the dispatcher applies upstream. Either channel may be
// nil to ignore that event kind. The channels are never closed by the
// client.
func ChanSink(frames chan<- Frame, connectivity chan<- bool) Sink {
	return SinkFuncs{
		Frame: func(f Frame) {
			if frames == nil {
				return
			}
			select {
			case frames <- f:
			default:
			}
		},
		Connectivity: func(connected bool) {
			if connectivity == nil {
				return
			}
			select {
			case connectivity <- connected:
			default:
			}
		},
	}
}

// MultiSink fans events out to several sinks in order. Used to feed
// diagnostics surfaces alongside the primary consumer.
func MultiSink(sinks ...Sink) Sink {
	return SinkFuncs{
		Frame: func(f Frame) {
			for _, s := range sinks {
				s.OnFrame(f)
			}
		},
		Connectivity: func(connected bool) {
			for _, s := range sinks {
				s.OnConnectivity(connected)
			}
		},
	}
}
