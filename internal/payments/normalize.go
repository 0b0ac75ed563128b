// normalize.go - Payment method canonicalization and reference-field sanitization

package payments

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

// Canonical payment method codes
const (
	MethodCash     = "cash"
	MethodBit      = "bit"
	MethodPaybox   = "paybox"
	MethodCredit   = "credit"
	MethodTransfer = "transfer"
	MethodCheck    = "check"
)

// BankDetails holds the payer-side bank coordinates of a transfer or check
type BankDetails struct {
	Bank    string `json:"bank"`
	Branch  string `json:"branch"`
	Account string `json:"account"`
}

// Sanitized is the canonical payment fragment produced by Sanitize.
// BankDetails is a canonical JSON string, empty when absent.
type Sanitized struct {
	Method             string
	ConfirmationNumber string
	LastFourDigits     string
	CheckNumber        string
	BankDetails        string
	Installments       int
}

// methodSynonyms maps free-text and Hebrew payment method names to canonical
// codes via substring match. Order matters: "debit" must be checked before
// "bit" so debit cards land on credit, not bit.
var methodSynonyms = []struct {
	needle string
	code   string
}{
	{"מזומן", MethodCash},
	{"cash", MethodCash},
	{"פייבוקס", MethodPaybox},
	{"פיי בוקס", MethodPaybox},
	{"paybox", MethodPaybox},
	{"debit", MethodCredit},
	{"ביט", MethodBit},
	{"bit", MethodBit},
	{"אשראי", MethodCredit},
	{"כרטיס", MethodCredit},
	{"credit", MethodCredit},
	{"visa", MethodCredit},
	{"mastercard", MethodCredit},
	{"isracard", MethodCredit},
	{"card", MethodCredit},
	{"העברה", MethodTransfer},
	{"transfer", MethodTransfer},
	{"wire", MethodTransfer},
	{"צ'ק", MethodCheck},
	{"צק", MethodCheck},
	{"שיק", MethodCheck},
	{"cheque", MethodCheck},
	{"check", MethodCheck},
}

// CanonicalMethod maps free-text payment method names to one of the
// canonical codes. Unrecognized text passes through unchanged.
func CanonicalMethod(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	lower := strings.ToLower(trimmed)
	switch lower {
	case MethodCash, MethodBit, MethodPaybox, MethodCredit, MethodTransfer, MethodCheck:
		return lower
	}

	for _, syn := range methodSynonyms {
		if strings.Contains(lower, syn.needle) {
			return syn.code
		}
	}

	return trimmed
}

// Sanitize canonicalizes the method and masks reference fields down to the
// subset that method may retain. It is applied identically at record
// creation, AI merge and manual edit, and is idempotent.
//
//	method     confirmation  last4  check#  bank  installments
//	cash       -             -      -       -     forced 1
//	bit/paybox yes           -      -       -     forced 1
//	credit     yes           yes    -       -     >=1
//	transfer   yes           -      -       yes   forced 1
//	check      -             -      yes     yes   forced 1
func Sanitize(method, confirmation, lastFour, checkNumber string, bankDetails interface{}, installments interface{}) Sanitized {
	out := Sanitized{
		Method:             CanonicalMethod(method),
		ConfirmationNumber: strings.TrimSpace(confirmation),
		LastFourDigits:     NormalizeLastFour(lastFour),
		CheckNumber:        strings.TrimSpace(checkNumber),
		BankDetails:        NormalizeBankDetails(bankDetails),
		Installments:       NormalizeInstallments(installments),
	}

	switch out.Method {
	case MethodCash:
		out.ConfirmationNumber = ""
		out.LastFourDigits = ""
		out.CheckNumber = ""
		out.BankDetails = ""
		out.Installments = 1
	case MethodBit, MethodPaybox:
		out.LastFourDigits = ""
		out.CheckNumber = ""
		out.BankDetails = ""
		out.Installments = 1
	case MethodCredit:
		out.CheckNumber = ""
		out.BankDetails = ""
	case MethodTransfer:
		out.LastFourDigits = ""
		out.CheckNumber = ""
		out.Installments = 1
	case MethodCheck:
		out.ConfirmationNumber = ""
		out.LastFourDigits = ""
		out.Installments = 1
	default:
		// Unrecognized method: no retention table applies, keep the
		// fields as supplied.
	}

	return out
}

var nonDigits = regexp.MustCompile(`[^0-9]`)
var digitGroups = regexp.MustCompile(`[0-9]+`)

// NormalizeLastFour strips non-digits and keeps exactly the final 4 digits.
// Shorter digit strings pass through unpadded; no digits yields empty.
func NormalizeLastFour(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) >= 4 {
		return digits[len(digits)-4:]
	}
	return digits
}

// NormalizeInstallments coerces any value to a positive installment count.
// Non-numeric or non-positive input becomes 1.
func NormalizeInstallments(v interface{}) int {
	n := cast.ToInt(v)
	if n < 1 {
		return 1
	}
	return n
}

// NormalizeBankDetails accepts a BankDetails struct, a map, a JSON string or
// a loose string of digit groups (positionally bank/branch/account) and
// serializes to one canonical JSON string. Empty input yields empty.
func NormalizeBankDetails(v interface{}) string {
	var bd BankDetails

	switch val := v.(type) {
	case nil:
		return ""
	case BankDetails:
		bd = val
	case *BankDetails:
		if val == nil {
			return ""
		}
		bd = *val
	case map[string]interface{}:
		bd = bankDetailsFromMap(val)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return ""
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			bd = bankDetailsFromMap(m)
		} else {
			// Loose form like "12 345 6789" or "12-345-6789"
			groups := digitGroups.FindAllString(s, -1)
			fields := []*string{&bd.Bank, &bd.Branch, &bd.Account}
			for i, g := range groups {
				if i >= len(fields) {
					break
				}
				*fields[i] = g
			}
		}
	default:
		return ""
	}

	if bd.Bank == "" && bd.Branch == "" && bd.Account == "" {
		return ""
	}

	buf, err := json.Marshal(bd)
	if err != nil {
		return ""
	}
	return string(buf)
}

// bankDetailsFromMap reads bank coordinates from a loosely keyed map.
// Numbers are tolerated anywhere a string is expected.
func bankDetailsFromMap(m map[string]interface{}) BankDetails {
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := m[k]; ok {
				s := strings.TrimSpace(cast.ToString(v))
				if s != "" {
					return s
				}
			}
		}
		return ""
	}

	return BankDetails{
		Bank:    pick("bank", "bank_number", "bankNumber", "bank_code"),
		Branch:  pick("branch", "branch_number", "branchNumber", "snif"),
		Account: pick("account", "account_number", "accountNumber", "heshbon"),
	}
}
