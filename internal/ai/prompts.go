// prompts.go - Vision prompt for receipt reference-data extraction

package ai

import "fmt"

// BuildReceiptPrompt returns the extraction prompt. The model is instructed
// to return strict JSON and to extract only the payer's reference data:
// transfer confirmations often show the business's own bank coordinates next
// to the sender's, and ours must never be picked up.
func BuildReceiptPrompt(methodHint string) string {
	prompt := `You are reading a payment receipt or confirmation screenshot.

Return ONLY a single valid JSON object, no markdown, no explanations, with exactly these fields:

{
  "payment_method": "cash" | "bit" | "paybox" | "credit" | "transfer" | "check" | null,
  "confirmation_number": string | null,
  "last_four_digits": string | null,
  "check_number": string | null,
  "installments": number | null,
  "bank_details": { "bank": string, "branch": string, "account": string } | null
}

Rules:
- Use null for anything not visible on the document. Never invent values.
- confirmation_number is the transaction/approval/reference number (Hebrew: אסמכתא, מספר אישור).
- last_four_digits are the last digits of the paying card, if shown.
- installments is the number of payments (Hebrew: תשלומים), only for credit card charges.
- bank_details are the PAYER's bank, branch and account numbers.
- IMPORTANT: when the document shows both sender and recipient bank details (common on wire transfer confirmations), extract ONLY the sender's (payer's) side. Ignore the recipient/beneficiary coordinates entirely.
- The document may be in Hebrew, English or both.`

	if methodHint != "" {
		prompt += fmt.Sprintf("\n\nThe person filing this payment said it was paid by %q. Use this as a hint, but trust the document if it clearly shows otherwise.", methodHint)
	}

	return prompt
}
