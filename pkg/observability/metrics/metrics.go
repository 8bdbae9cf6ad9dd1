package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	jobsProcessed        atomic.Int64
	jobsFailed           atomic.Int64
	transcriptionErrors  atomic.Int64
	llmErrors            atomic.Int64
	autoRetriesScheduled atomic.Int64
	autoRetriesExhausted atomic.Int64
	blobsReaped          atomic.Int64
	lockContentions      atomic.Int64
)

func IncJobsProcessed()        { jobsProcessed.Add(1) }
func IncJobsFailed()           { jobsFailed.Add(1) }
func IncTranscriptionErrors()  { transcriptionErrors.Add(1) }
func IncLLMErrors()            { llmErrors.Add(1) }
func IncAutoRetriesScheduled() { autoRetriesScheduled.Add(1) }
func IncAutoRetriesExhausted() { autoRetriesExhausted.Add(1) }
func AddBlobsReaped(n int)     { blobsReaped.Add(int64(n)) }
func IncLockContentions()      { lockContentions.Add(1) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeCounter(w, "meetscribe_jobs_processed_total", "Meeting jobs processed to completion.", jobsProcessed.Load())
	writeCounter(w, "meetscribe_jobs_failed_total", "Meeting jobs that ended in a failure state.", jobsFailed.Load())
	writeCounter(w, "meetscribe_transcription_errors_total", "Transcription stage errors recorded.", transcriptionErrors.Load())
	writeCounter(w, "meetscribe_llm_errors_total", "LLM stage errors recorded.", llmErrors.Load())
	writeCounter(w, "meetscribe_auto_retries_scheduled_total", "Auto-retry cycles scheduled.", autoRetriesScheduled.Load())
	writeCounter(w, "meetscribe_auto_retries_exhausted_total", "Meetings that hit the auto-retry ceiling.", autoRetriesExhausted.Load())
	writeCounter(w, "meetscribe_blobs_reaped_total", "Expired upload blobs deleted by the sweep.", blobsReaped.Load())
	writeCounter(w, "meetscribe_lock_contentions_total", "Lock acquisitions that found the lock held.", lockContentions.Load())
}

func writeCounter(w http.ResponseWriter, name, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n", name, value)
}
