// reconciler.go - Detached receipt-enrichment pipeline behind a bounded worker pool

package enrich

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/oritmalki/bizmanager/internal/ai"
	"github.com/oritmalki/bizmanager/internal/common"
	"github.com/oritmalki/bizmanager/internal/metrics"
	"github.com/oritmalki/bizmanager/internal/notify"
	"github.com/oritmalki/bizmanager/internal/payments"
	"github.com/oritmalki/bizmanager/internal/processor"
	"github.com/oritmalki/bizmanager/internal/storage"
)

// Task is one enrichment job, handed off after the synchronous create
// response has been sent. RecordID is the durable id returned by the insert;
// the natural-key fields are only a fallback for tasks that lost it.
type Task struct {
	RecordID   string
	OrderID    string
	Amount     string
	Method     string
	Receipt    []byte
	MIMEType   string
	MethodHint string
}

// Store is the slice of the storage layer the reconciler needs
type Store interface {
	GetPayment(id string) (*storage.PaymentRecord, error)
	FindLatestByNaturalKey(orderID, amount, method string) (*storage.PaymentRecord, error)
	ApplyEnrichment(id string, san payments.Sanitized, model string) error
	SetEnrichmentStatus(id, status string) error
}

// Reconciler drains the task queue with a fixed number of workers so
// concurrent outbound AI and webhook calls stay bounded. Every failure is
// caught at the task boundary: logged, counted, never surfaced or retried.
type Reconciler struct {
	extractor    *ai.Extractor
	store        Store
	dispatcher   *notify.Dispatcher
	maxImageDim  int
	tasks        chan Task
	wg           sync.WaitGroup
	startStopMu  sync.Mutex
	started      bool
}

// NewReconciler creates the pipeline with a buffered task queue
func NewReconciler(extractor *ai.Extractor, store Store, dispatcher *notify.Dispatcher, queueSize, maxImageDim int) *Reconciler {
	return &Reconciler{
		extractor:   extractor,
		store:       store,
		dispatcher:  dispatcher,
		maxImageDim: maxImageDim,
		tasks:       make(chan Task, queueSize),
	}
}

// Start launches the worker pool
func (r *Reconciler) Start(workers int) {
	r.startStopMu.Lock()
	defer r.startStopMu.Unlock()
	if r.started {
		return
	}
	r.started = true

	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for task := range r.tasks {
				metrics.EnrichmentQueueDepth.Dec()
				r.process(task)
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight tasks to finish
func (r *Reconciler) Stop() {
	r.startStopMu.Lock()
	defer r.startStopMu.Unlock()
	if !r.started {
		return
	}
	r.started = false
	close(r.tasks)
	r.wg.Wait()
}

// Enqueue hands a task to the pool without blocking the request path. A full
// queue drops the task - enrichment is best-effort, the record itself is
// already persisted.
func (r *Reconciler) Enqueue(t Task) bool {
	select {
	case r.tasks <- t:
		metrics.EnrichmentQueueDepth.Inc()
		return true
	default:
		metrics.EnrichmentTasks.WithLabelValues("dropped").Inc()
		return false
	}
}

// process runs one task end to end: locate the record, extract, merge,
// sanitize, write back, then dispatch the notification. Write-back always
// happens before dispatch for a given record.
func (r *Reconciler) process(t Task) {
	tc := common.NewTaskContext(t.RecordID)
	defer func() {
		if rec := recover(); rec != nil {
			metrics.EnrichmentTasks.WithLabelValues("failed").Inc()
			tc.LogError("enrichment task panicked: %v", rec)
		}
	}()

	row, err := r.locate(t)
	if err != nil {
		metrics.EnrichmentTasks.WithLabelValues("failed").Inc()
		tc.LogError("cannot locate payment for enrichment: %v", err)
		return
	}
	recordID := row.ID.Hex()

	if row.EnrichmentStatus == storage.EnrichmentFinal {
		tc.LogInfo("payment %s already final, skipping", recordID)
		metrics.EnrichmentTasks.WithLabelValues("unchanged").Inc()
		return
	}

	san, model := r.enrich(t, row, tc)

	tc.StartStep("write_back")
	if model != "" {
		if err := r.store.ApplyEnrichment(recordID, san, model); err != nil {
			tc.EndStep("failed", err)
			metrics.EnrichmentTasks.WithLabelValues("failed").Inc()
			return
		}
		tc.EndStep("success", nil)
		metrics.EnrichmentTasks.WithLabelValues("enriched").Inc()
	} else {
		if err := r.store.SetEnrichmentStatus(recordID, storage.EnrichmentFinal); err != nil {
			tc.EndStep("failed", err)
			metrics.EnrichmentTasks.WithLabelValues("failed").Inc()
			return
		}
		tc.EndStep("success", nil)
		metrics.EnrichmentTasks.WithLabelValues("unchanged").Inc()
	}

	r.notifyFinal(t, row, san, tc)
}

// locate resolves the target row, preferring the durable id from the insert
func (r *Reconciler) locate(t Task) (*storage.PaymentRecord, error) {
	if t.RecordID != "" {
		return r.store.GetPayment(t.RecordID)
	}
	return r.store.FindLatestByNaturalKey(t.OrderID, t.Amount, t.Method)
}

// enrich runs extraction and merges the result over the row's current
// values. Returns the sanitized fragment and the producing model name; an
// empty model means extraction produced nothing usable and the row's own
// values come back sanitized but unwritten.
func (r *Reconciler) enrich(t Task, row *storage.PaymentRecord, tc *common.TaskContext) (payments.Sanitized, string) {
	current := payments.Sanitize(row.Method, row.ConfirmationNumber, row.LastFourDigits,
		row.CheckNumber, row.BankDetails, row.Installments)

	if row.HasReferenceData() || len(t.Receipt) == 0 || !r.extractor.Enabled() {
		return current, ""
	}

	tc.StartStep("extract")
	data, mimeType := processor.PrepareReceipt(t.Receipt, t.MIMEType, r.maxImageDim)
	ext := r.extractor.Extract(context.Background(), data, mimeType, t.MethodHint, tc)
	if ext == nil {
		tc.EndStep("failed", fmt.Errorf("extraction produced no result"))
		return current, ""
	}
	tc.EndStep("success", nil)

	merged := mergeFillIfEmpty(row, ext)
	return merged, ext.Model
}

// mergeFillIfEmpty lays extracted values under the row's current ones: AI
// data never overwrites a value the user explicitly supplied. The default
// installment count of 1 counts as unset for merging purposes.
func mergeFillIfEmpty(row *storage.PaymentRecord, ext *ai.ExtractionResult) payments.Sanitized {
	method := row.Method
	if method == "" {
		method = ext.PaymentMethod
	}

	confirmation := row.ConfirmationNumber
	if confirmation == "" {
		confirmation = ext.ConfirmationNumber
	}

	lastFour := row.LastFourDigits
	if lastFour == "" {
		lastFour = ext.LastFourDigits
	}

	checkNumber := row.CheckNumber
	if checkNumber == "" {
		checkNumber = ext.CheckNumber
	}

	var bank interface{} = row.BankDetails
	if row.BankDetails == "" && ext.BankDetails != nil {
		bank = ext.BankDetails
	}

	installments := row.Installments
	if installments <= 1 && ext.Installments > 1 {
		installments = ext.Installments
	}

	return payments.Sanitize(method, confirmation, lastFour, checkNumber, bank, installments)
}

// notifyFinal hands the final (possibly enriched) values to the dispatcher.
// Dispatch failures are reflected in the attempt log only.
func (r *Reconciler) notifyFinal(t Task, row *storage.PaymentRecord, san payments.Sanitized, tc *common.TaskContext) {
	payload := notify.Payload{
		Type:    "payment.recorded",
		Subject: fmt.Sprintf("Payment of %s received (%s)", row.Amount, san.Method),
		Data: map[string]interface{}{
			"payment_id":          row.ID.Hex(),
			"order_id":            row.OrderID,
			"amount":              row.Amount,
			"method":              san.Method,
			"confirmation_number": san.ConfirmationNumber,
			"last_four_digits":    san.LastFourDigits,
			"check_number":        san.CheckNumber,
			"bank_details":        san.BankDetails,
			"installments":        san.Installments,
		},
	}

	if len(t.Receipt) > 0 {
		payload.FileBase64 = base64.StdEncoding.EncodeToString(t.Receipt)
		payload.FileName = row.ReceiptFileName
	}

	result := r.dispatcher.Dispatch(context.Background(), payload)
	if !result.Success {
		tc.LogWarning("notification dispatch failed: %s", result.Error)
	} else {
		tc.LogInfo("notification dispatched")
	}
}
