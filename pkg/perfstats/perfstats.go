// Package perfstats measures how long each stage of the sorting pipeline takes
package perfstats

import (
	"fmt"
	"strings"
	"time"
)

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// Since adds the time elapsed since start. Use it with defer.
func (a *TimeAccumulator) Since(start time.Time) {
	a.AddSample(time.Since(start))
}

// Pipeline is the time spent in each stage, over any number of files
type Pipeline struct {
	Decode   TimeAccumulator // Image decode or video frame read
	Detect   TimeAccumulator // Object detector
	Classify TimeAccumulator // Species classifier
	Encode   TimeAccumulator // Annotation, image encode, or video frame write
}

func (p *Pipeline) Reset() {
	p.Decode.Reset()
	p.Detect.Reset()
	p.Classify.Reset()
	p.Encode.Reset()
}

// Summary is a single log line, such as "detect: 12 x 35.1ms, classify: 3 x 8.2ms"
func (p *Pipeline) Summary() string {
	parts := []string{}
	add := func(name string, a *TimeAccumulator) {
		if a.Samples != 0 {
			parts = append(parts, fmt.Sprintf("%v: %v x %.1fms", name, a.Samples, float64(a.Average().Microseconds())/1000))
		}
	}
	add("decode", &p.Decode)
	add("detect", &p.Detect)
	add("classify", &p.Classify)
	add("encode", &p.Encode)
	if len(parts) == 0 {
		return "no samples"
	}
	return strings.Join(parts, ", ")
}
