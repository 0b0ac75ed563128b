// extract.go - Receipt extraction service over the model router

package ai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/oritmalki/bizmanager/internal/common"
	"github.com/oritmalki/bizmanager/internal/metrics"
	"github.com/oritmalki/bizmanager/internal/payments"
	"github.com/spf13/cast"
)

// ExtractionResult is the provisional reference data read off a receipt.
// All fields are optional; zero values mean the model saw nothing.
type ExtractionResult struct {
	PaymentMethod      string
	ConfirmationNumber string
	LastFourDigits     string
	CheckNumber        string
	Installments       int
	BankDetails        *payments.BankDetails
	Model              string // which candidate produced the result
}

// Extractor turns raw receipt bytes into an ExtractionResult. Extraction is
// advisory: every failure path returns nil, never an error.
type Extractor struct {
	router  *ModelRouter
	enabled bool
}

// NewExtractor creates the extraction service. With no credential configured
// the extractor stays disabled and Extract returns nil without network calls.
func NewExtractor(router *ModelRouter, apiKeyConfigured bool) *Extractor {
	return &Extractor{router: router, enabled: apiKeyConfigured}
}

// Enabled reports whether a credential is configured.
func (e *Extractor) Enabled() bool { return e.enabled }

// Extract runs the prompt through the model call loop and tolerantly parses
// the reply. Returns nil when disabled, when every candidate fails, or when
// the reply cannot be parsed.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType, methodHint string, tc *common.TaskContext) *ExtractionResult {
	if !e.enabled {
		return nil
	}

	prompt := BuildReceiptPrompt(methodHint)
	text, model := e.router.Generate(ctx, prompt, mimeType, data, tc)
	if text == "" {
		return nil
	}

	result := parseExtractionReply(text)
	if result == nil {
		metrics.ExtractionAttempts.WithLabelValues(model, "parse_error").Inc()
		tc.LogError("unparseable model reply from %s: %s", model, preview(text, 300))
		return nil
	}

	result.Model = model
	return result
}

// Field-name synonyms seen in model replies over time. First populated key
// wins, so the preferred spelling goes first.
var (
	methodKeys       = []string{"payment_method", "paymentMethod", "method", "payment_type", "paymentType"}
	confirmationKeys = []string{"confirmation_number", "confirmationNumber", "confirmation", "reference_number", "reference", "transaction_number", "approval_number", "asmachta"}
	lastFourKeys     = []string{"last_four_digits", "lastFourDigits", "last_4_digits", "last4", "card_last_four", "last_digits"}
	checkNumberKeys  = []string{"check_number", "checkNumber", "cheque_number", "check_no"}
	installmentKeys  = []string{"installments", "num_installments", "number_of_payments", "payments_count", "tashlumim"}
	bankDetailKeys   = []string{"bank_details", "bankDetails", "bank_info", "bank_account", "bank"}
)

// parseExtractionReply parses the model's JSON reply. Markdown code fences
// are stripped first; a reply that is not a JSON object yields nil.
func parseExtractionReply(text string) *ExtractionResult {
	cleaned := stripCodeFences(text)

	var m map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &m); err != nil {
		return nil
	}

	result := &ExtractionResult{
		PaymentMethod:      pickString(m, methodKeys),
		ConfirmationNumber: stripSeparators(pickString(m, confirmationKeys)),
		LastFourDigits:     pickString(m, lastFourKeys),
		CheckNumber:        pickString(m, checkNumberKeys),
		Installments:       cast.ToInt(pickValue(m, installmentKeys)),
	}

	if raw := pickValue(m, bankDetailKeys); raw != nil {
		if canonical := payments.NormalizeBankDetails(raw); canonical != "" {
			var bd payments.BankDetails
			if err := json.Unmarshal([]byte(canonical), &bd); err == nil {
				result.BankDetails = &bd
			}
		}
	}

	return result
}

// stripCodeFences removes a surrounding ```json ... ``` block if present
func stripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// pickValue returns the first populated value among the synonym keys
func pickValue(m map[string]interface{}, keys []string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v
		}
	}
	return nil
}

// pickString returns the first populated value coerced to a trimmed string
func pickString(m map[string]interface{}, keys []string) string {
	v := pickValue(m, keys)
	if v == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

// stripSeparators removes separator characters from confirmation numbers, so
// "12-34" and "12 34" both come back as "1234".
func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '/', '.', ',', '_', ':':
			return -1
		}
		return r
	}, s)
}

func preview(s string, n int) string {
	if len(s) > n {
		return s[:n] + "... (truncated)"
	}
	return s
}
