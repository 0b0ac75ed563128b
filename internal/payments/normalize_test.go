package payments

import (
	"encoding/json"
	"testing"
)

func TestCanonicalMethod(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"cash", "cash"},
		{"מזומן", "cash"},
		{"Bit", "bit"},
		{"תשלום בביט", "bit"},
		{"PayBox", "paybox"},
		{"פייבוקס", "paybox"},
		{"credit", "credit"},
		{"אשראי", "credit"},
		{"כרטיס אשראי", "credit"},
		{"Visa", "credit"},
		{"debit card", "credit"}, // debit must not match bit
		{"bank transfer", "transfer"},
		{"העברה בנקאית", "transfer"},
		{"check", "check"},
		{"cheque", "check"},
		{"צ'ק", "check"},
		{"שיק", "check"},
		{"voucher", "voucher"}, // unrecognized passes through
		{"  cash  ", "cash"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := CanonicalMethod(tc.in); got != tc.want {
			t.Errorf("CanonicalMethod(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeLastFour(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1234567", "4567"},
		{"4580-1234-5678-9012", "9012"},
		{"xx9012", "9012"},
		{"123", "123"},
		{"a1b2", "12"},
		{"none", ""},
		{"", ""},
	}

	for _, tc := range cases {
		if got := NormalizeLastFour(tc.in); got != tc.want {
			t.Errorf("NormalizeLastFour(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeInstallments(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int
	}{
		{3, 3},
		{"3", 3},
		{0, 1},
		{-2, 1},
		{"garbage", 1},
		{nil, 1},
		{"", 1},
	}

	for _, tc := range cases {
		if got := NormalizeInstallments(tc.in); got != tc.want {
			t.Errorf("NormalizeInstallments(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeBankDetails(t *testing.T) {
	wantJSON := `{"bank":"12","branch":"345","account":"6789"}`

	t.Run("struct input", func(t *testing.T) {
		got := NormalizeBankDetails(BankDetails{Bank: "12", Branch: "345", Account: "6789"})
		if got != wantJSON {
			t.Errorf("got %q, want %q", got, wantJSON)
		}
	})

	t.Run("json string input", func(t *testing.T) {
		got := NormalizeBankDetails(`{"bank":"12","branch":"345","account":"6789"}`)
		if got != wantJSON {
			t.Errorf("got %q, want %q", got, wantJSON)
		}
	})

	t.Run("loosely keyed map", func(t *testing.T) {
		got := NormalizeBankDetails(map[string]interface{}{
			"bank_number": 12, "branch_number": "345", "account_number": "6789",
		})
		if got != wantJSON {
			t.Errorf("got %q, want %q", got, wantJSON)
		}
	})

	t.Run("loose digit groups", func(t *testing.T) {
		for _, in := range []string{"12 345 6789", "12-345-6789", "bank 12 branch 345 account 6789"} {
			if got := NormalizeBankDetails(in); got != wantJSON {
				t.Errorf("NormalizeBankDetails(%q) = %q, want %q", in, got, wantJSON)
			}
		}
	})

	t.Run("partial digit groups", func(t *testing.T) {
		got := NormalizeBankDetails("12 345")
		want := `{"bank":"12","branch":"345","account":""}`
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("empty inputs", func(t *testing.T) {
		for _, in := range []interface{}{nil, "", "no digits here", map[string]interface{}{}} {
			if got := NormalizeBankDetails(in); got != "" {
				t.Errorf("NormalizeBankDetails(%v) = %q, want empty", in, got)
			}
		}
	})
}

// Per-method field masking: output must never contain a field outside the
// method's allowed set, regardless of input.
func TestSanitizeMethodMasking(t *testing.T) {
	bank := BankDetails{Bank: "12", Branch: "345", Account: "6789"}

	cases := []struct {
		method           string
		wantConfirmation bool
		wantLastFour     bool
		wantCheckNumber  bool
		wantBank         bool
		wantInstallments int
	}{
		{"cash", false, false, false, false, 1},
		{"bit", true, false, false, false, 1},
		{"paybox", true, false, false, false, 1},
		{"credit", true, true, false, false, 5},
		{"transfer", true, false, false, true, 1},
		{"check", false, false, true, true, 1},
	}

	for _, tc := range cases {
		t.Run(tc.method, func(t *testing.T) {
			got := Sanitize(tc.method, "CONF-1", "1234567", "778899", bank, 5)

			if (got.ConfirmationNumber != "") != tc.wantConfirmation {
				t.Errorf("confirmation = %q, want populated=%v", got.ConfirmationNumber, tc.wantConfirmation)
			}
			if (got.LastFourDigits != "") != tc.wantLastFour {
				t.Errorf("last four = %q, want populated=%v", got.LastFourDigits, tc.wantLastFour)
			}
			if (got.CheckNumber != "") != tc.wantCheckNumber {
				t.Errorf("check number = %q, want populated=%v", got.CheckNumber, tc.wantCheckNumber)
			}
			if (got.BankDetails != "") != tc.wantBank {
				t.Errorf("bank details = %q, want populated=%v", got.BankDetails, tc.wantBank)
			}
			if got.Installments != tc.wantInstallments {
				t.Errorf("installments = %d, want %d", got.Installments, tc.wantInstallments)
			}
		})
	}
}

// Sanitize applied twice must equal sanitize applied once.
func TestSanitizeIdempotent(t *testing.T) {
	inputs := []struct {
		method       string
		confirmation string
		lastFour     string
		checkNumber  string
		bank         interface{}
		installments interface{}
	}{
		{"credit", "123-456", "1234567", "", nil, 0},
		{"אשראי", "ABC", "9", "555", "12 345 6789", 12},
		{"cash", "ABC", "1234", "555", `{"bank":"1","branch":"2","account":"3"}`, 4},
		{"transfer", "T1", "", "", BankDetails{Bank: "12", Branch: "345", Account: "6789"}, -1},
		{"check", "", "", "100200", map[string]interface{}{"bank": "9"}, "x"},
		{"voucher", "V9", "88", "2", nil, 2},
		{"", "", "", "", "", nil},
	}

	for _, in := range inputs {
		once := Sanitize(in.method, in.confirmation, in.lastFour, in.checkNumber, in.bank, in.installments)
		twice := Sanitize(once.Method, once.ConfirmationNumber, once.LastFourDigits, once.CheckNumber, once.BankDetails, once.Installments)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %+v:\n once: %+v\ntwice: %+v", in, once, twice)
		}
	}
}

func TestSanitizeCreditLocalizedInput(t *testing.T) {
	// Localized method text, confirmation with dashes, long digit string
	got := Sanitize("אשראי", "123-456", "1234567", "", nil, nil)

	if got.Method != "credit" {
		t.Errorf("method = %q, want credit", got.Method)
	}
	// The normalizer does not strip separator characters from confirmations
	if got.ConfirmationNumber != "123-456" {
		t.Errorf("confirmation = %q, want 123-456", got.ConfirmationNumber)
	}
	if got.LastFourDigits != "4567" {
		t.Errorf("last four = %q, want 4567", got.LastFourDigits)
	}
	if got.CheckNumber != "" || got.BankDetails != "" {
		t.Errorf("check/bank must be empty, got %q / %q", got.CheckNumber, got.BankDetails)
	}
	if got.Installments != 1 {
		t.Errorf("installments = %d, want 1", got.Installments)
	}
}

func TestSanitizeCashClearsEverything(t *testing.T) {
	got := Sanitize("cash", "ABC", "", "", nil, nil)

	if got.ConfirmationNumber != "" || got.LastFourDigits != "" || got.CheckNumber != "" || got.BankDetails != "" {
		t.Errorf("cash must clear all reference fields, got %+v", got)
	}
	if got.Installments != 1 {
		t.Errorf("installments = %d, want 1", got.Installments)
	}
}

func TestSanitizeTransferKeepsBankDetails(t *testing.T) {
	got := Sanitize("transfer", "T-1", "1234", "55", `{"bank":"12","branch":"345","account":"6789"}`, 4)

	var bd BankDetails
	if err := json.Unmarshal([]byte(got.BankDetails), &bd); err != nil {
		t.Fatalf("bank details not valid JSON: %v", err)
	}
	if bd.Bank != "12" || bd.Branch != "345" || bd.Account != "6789" {
		t.Errorf("bank details = %+v, want 12/345/6789", bd)
	}
	if got.LastFourDigits != "" || got.CheckNumber != "" {
		t.Errorf("transfer must clear last4 and check number, got %q / %q", got.LastFourDigits, got.CheckNumber)
	}
	if got.Installments != 1 {
		t.Errorf("installments = %d, want 1", got.Installments)
	}
}
