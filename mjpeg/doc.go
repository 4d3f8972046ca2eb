// Package mjpeg implements a resilient ingestion client for raw MJPEG
// streams: long-lived HTTP responses carrying back-to-back JPEG images
// with no framing beyond the images' own SOI/EOI markers.
//
// Philosophy: "Drop frames, never queue. Latency > Completeness."
//
// The client owns the full acquisition path - connection lifecycle,
// frame boundary scanning with bounded buffering, and latest-wins
// delivery of the newest complete frame - and survives disconnects,
// malformed data, and mid-stream endpoint switches. It never looks at
// a frame's content and never paces delivery; rendering, control, and
// generation are the caller's concern.
//
// Design:
//   - Non-blocking delivery: a slow consumer drops superseded frames,
//     it never backpressures the network receive path
//   - Bounded memory: the scan buffer is truncated to its last start
//     marker on overflow, so a markerless stream cannot grow the heap
//   - Fixed-delay reconnect, unbounded by default: built for always-on
//     installations where the source may disappear for hours
//   - Synchronous stop: once Stop returns, no event fires
//
// Usage:
//
//	frames := make(chan mjpeg.Frame, 1)
//	client, err := mjpeg.New(mjpeg.Config{URL: "http://cam:8554/stream"},
//	    mjpeg.ChanSink(frames, nil))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop()
//
//	for frame := range frames {
//	    render(frame.Data) // complete JPEG, markers included
//	}
//
// The stream format is raw concatenated JPEG, not multipart
// x-mixed-replace; multipart boundary headers are not parsed (any
// boundary bytes between images are treated as inter-frame garbage
// and discarded by the scanner).
package mjpeg
