package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// funnelSink tallies how candidates moved through a discovery job.
type funnelSink struct {
	created    int
	duplicates map[string]int
}

func (s *funnelSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case StageLeadCreated:
			s.created++
		case StageDuplicateSkipped:
			s.duplicates[evt.Note]++
		}
	}
	return nil
}

func (s *funnelSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit reports a discovery funnel from progress events. Close
// flushes whatever is still buffered.
func ExampleHub_Emit() {
	sink := &funnelSink{duplicates: map[string]int{}}
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 4, MaxBatchWait: time.Second}, sink)

	job := UUIDToBytes(uuid.MustParse("0190b5a8-1c2d-7e3f-8a9b-0c1d2e3f4a51"))
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	hub.Emit(Event{JobID: job, TS: at, Stage: StageJobStart})
	hub.Emit(Event{JobID: job, TS: at, Stage: StageLeadCreated, Source: "duckduckgo", Note: "lead-1"})
	hub.Emit(Event{JobID: job, TS: at, Stage: StageLeadCreated, Source: "bing", Note: "lead-2"})
	hub.Emit(Event{JobID: job, TS: at, Stage: StageDuplicateSkipped, Source: "bing", Note: "domain"})
	hub.Emit(Event{JobID: job, TS: at, Stage: StageDuplicateSkipped, Source: "duckduckgo", Note: "phone"})
	hub.Emit(Event{JobID: job, TS: at, Stage: StageDuplicateSkipped, Source: "bing", Note: "domain"})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("created=%d domain=%d phone=%d\n", sink.created, sink.duplicates["domain"], sink.duplicates["phone"])
	// Output:
	// created=2 domain=2 phone=1
}

// ExampleClassifyStatus shows how analyzed sites are grouped for reporting.
func ExampleClassifyStatus() {
	for _, code := range []int{200, 301, 404, 503, 0} {
		fmt.Println(code, ClassifyStatus(code))
	}
	// Output:
	// 200 2xx
	// 301 3xx
	// 404 4xx
	// 503 5xx
	// 0 unreachable
}
