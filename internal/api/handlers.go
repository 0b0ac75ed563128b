// handlers.go - HTTP handlers for the payment endpoints

package api

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oritmalki/bizmanager/configs"
	"github.com/oritmalki/bizmanager/internal/enrich"
	"github.com/oritmalki/bizmanager/internal/payments"
	"github.com/oritmalki/bizmanager/internal/storage"
	"github.com/shopspring/decimal"
)

// Store is the slice of the storage layer the handlers need
type Store interface {
	InsertPayment(rec *storage.PaymentRecord) (string, error)
	GetPayment(id string) (*storage.PaymentRecord, error)
	UpdatePayment(id string, amount string, san payments.Sanitized) error
	SetEnrichmentStatus(id, status string) error
}

// Enqueuer hands tasks to the background enrichment pipeline
type Enqueuer interface {
	Enqueue(t enrich.Task) bool
}

// Handler bundles the payment endpoints with the enrichment pipeline
type Handler struct {
	store      Store
	reconciler Enqueuer
}

// NewHandler creates the handler set
func NewHandler(store Store, reconciler Enqueuer) *Handler {
	return &Handler{store: store, reconciler: reconciler}
}

// CreatePayment persists a payment from a multipart form and responds
// immediately. When a receipt file is attached and reference fields are
// missing, an enrichment task is enqueued after the response - its outcome
// never affects this request.
func (h *Handler) CreatePayment(c *gin.Context) {
	amount, err := parseAmount(c.PostForm("amount"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Call site 1: sanitize user-supplied values at creation
	san := payments.Sanitize(
		c.PostForm("method"),
		c.PostForm("confirmation_number"),
		c.PostForm("last_four_digits"),
		c.PostForm("check_number"),
		c.PostForm("bank_details"),
		c.PostForm("installments"),
	)

	rec := &storage.PaymentRecord{
		OrderID:            c.PostForm("order_id"),
		Amount:             amount,
		Method:             san.Method,
		ConfirmationNumber: san.ConfirmationNumber,
		LastFourDigits:     san.LastFourDigits,
		CheckNumber:        san.CheckNumber,
		BankDetails:        san.BankDetails,
		Installments:       san.Installments,
	}

	receipt, fileName, mimeType, err := readReceiptFile(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec.ReceiptFileName = fileName
	rec.ReceiptMIMEType = mimeType

	willEnrich := len(receipt) > 0 && !rec.HasReferenceData()
	if willEnrich {
		rec.EnrichmentStatus = storage.EnrichmentSubmitted
	} else {
		rec.EnrichmentStatus = storage.EnrichmentFinal
	}

	id, err := h.store.InsertPayment(rec)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store payment"})
		log.Printf("ERROR insert payment: %v", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":                id,
		"amount":            rec.Amount,
		"method":            rec.Method,
		"installments":      rec.Installments,
		"enrichment_status": rec.EnrichmentStatus,
	})

	// Response is written; everything below is invisible to the caller.
	if willEnrich {
		// The enriching transition must commit before the task exists: a
		// worker can finish and write final first, and final never moves
		// backward.
		if err := h.store.SetEnrichmentStatus(id, storage.EnrichmentEnriching); err != nil {
			log.Printf("WARN mark enriching for %s: %v", id, err)
		}
		enqueued := h.reconciler.Enqueue(enrich.Task{
			RecordID:   id,
			OrderID:    rec.OrderID,
			Amount:     rec.Amount,
			Method:     rec.Method,
			Receipt:    receipt,
			MIMEType:   mimeType,
			MethodHint: c.PostForm("method"),
		})
		if !enqueued {
			log.Printf("WARN enrichment queue full, payment %s stays as entered", id)
			if err := h.store.SetEnrichmentStatus(id, storage.EnrichmentFinal); err != nil {
				log.Printf("WARN mark final for %s: %v", id, err)
			}
		}
	}
}

// GetPayment returns one payment by id
func (h *Handler) GetPayment(c *gin.Context) {
	rec, err := h.store.GetPayment(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// updatePaymentRequest is the manual edit body
type updatePaymentRequest struct {
	Amount             string      `json:"amount"`
	Method             string      `json:"method"`
	ConfirmationNumber string      `json:"confirmation_number"`
	LastFourDigits     string      `json:"last_four_digits"`
	CheckNumber        string      `json:"check_number"`
	BankDetails        interface{} `json:"bank_details"`
	Installments       interface{} `json:"installments"`
}

// UpdatePayment applies a manual edit. Manual edits run through the same
// sanitizer as every other path and always bypass AI enrichment.
func (h *Handler) UpdatePayment(c *gin.Context) {
	var req updatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid body: %v", err)})
		return
	}

	amount := ""
	if req.Amount != "" {
		parsed, err := parseAmount(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amount = parsed
	}

	// Call site 3: sanitize manual edits
	san := payments.Sanitize(req.Method, req.ConfirmationNumber, req.LastFourDigits,
		req.CheckNumber, req.BankDetails, req.Installments)

	if err := h.store.UpdatePayment(c.Param("id"), amount, san); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.store.GetPayment(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// parseAmount validates and canonicalizes a money amount
func parseAmount(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return "", fmt.Errorf("invalid amount %q", raw)
	}
	if amount.IsNegative() {
		return "", fmt.Errorf("amount must not be negative")
	}
	return amount.String(), nil
}

// readReceiptFile reads the optional receipt upload into memory, bounded by
// MAX_RECEIPT_BYTES. Attachments are inlined downstream, so no streaming.
func readReceiptFile(c *gin.Context) (data []byte, fileName, mimeType string, err error) {
	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		return nil, "", "", nil // no receipt attached
	}

	if fileHeader.Size > configs.MAX_RECEIPT_BYTES {
		return nil, "", "", fmt.Errorf("receipt exceeds %d bytes", configs.MAX_RECEIPT_BYTES)
	}

	f, err := fileHeader.Open()
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to open receipt upload: %w", err)
	}
	defer f.Close()

	data, err = io.ReadAll(io.LimitReader(f, configs.MAX_RECEIPT_BYTES+1))
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to read receipt upload: %w", err)
	}
	if int64(len(data)) > configs.MAX_RECEIPT_BYTES {
		return nil, "", "", fmt.Errorf("receipt exceeds %d bytes", configs.MAX_RECEIPT_BYTES)
	}

	mimeType = fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return data, fileHeader.Filename, mimeType, nil
}
