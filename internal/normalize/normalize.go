// Package normalize turns raw spreadsheet rows into canonical price records.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"setopprice/internal/layout"
	"setopprice/internal/price"
	"setopprice/internal/textfold"
)

const (
	DefaultPrefix            = "CE-"
	DefaultMinDescriptionLen = 5
	maxPrefixedDigits        = 7
)

// Reason explains why a row was not turned into a record. The empty
// Reason means the row was accepted.
type Reason string

const (
	Accepted         Reason = ""
	EmptyCode        Reason = "empty_code"
	HeaderRow        Reason = "header"
	Sentinel         Reason = "sentinel"
	InvalidCode      Reason = "invalid_code"
	ShortDescription Reason = "short_description"
	Boilerplate      Reason = "boilerplate"
	UnparsableCost   Reason = "unparsable_cost"
	NegativeCost     Reason = "negative_cost"
)

// Reasons lists every rejection reason.
var Reasons = []Reason{
	EmptyCode, HeaderRow, Sentinel, InvalidCode, ShortDescription, Boilerplate, UnparsableCost, NegativeCost,
}

// CostPolicy decides what happens to a row whose cost cannot be read.
type CostPolicy string

const (
	CostZero   CostPolicy = "zero"
	CostReject CostPolicy = "reject"
)

func ParseCostPolicy(s string) (CostPolicy, error) {
	switch CostPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case CostZero, "":
		return CostZero, nil
	case CostReject:
		return CostReject, nil
	}
	return "", fmt.Errorf("unknown cost policy %q (want zero or reject)", s)
}

var (
	reCode   = regexp.MustCompile(`^[A-Za-z]+-[0-9]+$`)
	reDigits = regexp.MustCompile(`^[0-9]+$`)

	headerCodes = []string{"CODIGO", "DESCRICAO DO SERVICO"}
	sentinels   = []string{"SEINFRA", "ROD. PAPA JOAO PAULO II"}

	boilerplate = []*regexp.Regexp{
		regexp.MustCompile(`^(PLANILHA|TABELA|RELATORIO) (DE|REFERENCIAL DE) (PRECOS|CUSTOS)`),
		regexp.MustCompile(`^SECRETARIA DE ESTADO`),
		regexp.MustCompile(`^(PRECOS|CUSTOS) (COM|SEM) DESONERACAO`),
		regexp.MustCompile(`\bISENT[OA]S? D[EO]\b`),
		regexp.MustCompile(`^(DATA( BASE)?:? ?)?[0-9]{1,2}/[0-9]{1,2}/[0-9]{2,4}$`),
		regexp.MustCompile(`^(DATA( BASE)?:? ?)?(JAN|FEV|MAR|ABR|MAI|JUN|JUL|AGO|SET|OUT|NOV|DEZ)[A-Z]*[/ -](DE )?[0-9]{4}$`),
		regexp.MustCompile(`^[0-9]{1,2}/[0-9]{4}$`),
	}
)

// Normalizer is safe for concurrent use; Normalize has no side effects.
type Normalizer struct {
	Prefix            string
	MinDescriptionLen int
	CostPolicy        CostPolicy
}

func New() Normalizer {
	return Normalizer{Prefix: DefaultPrefix, MinDescriptionLen: DefaultMinDescriptionLen, CostPolicy: CostZero}
}

// Normalize converts one data row into a record tagged with region and
// year. A non-empty Reason means the row was rejected.
func (n Normalizer) Normalize(row []price.Cell, cols layout.ColumnMap, region, year string) (price.Record, Reason) {
	raw := price.At(row, cols.Code).String()
	if raw == "" {
		return price.Record{}, EmptyCode
	}
	folded := textfold.Fold(raw)
	for _, h := range headerCodes {
		if strings.Contains(folded, h) {
			return price.Record{}, HeaderRow
		}
	}
	for _, s := range sentinels {
		if folded == s || strings.Contains(folded, s) {
			return price.Record{}, Sentinel
		}
	}

	code := n.Code(raw)
	if !reCode.MatchString(code) {
		return price.Record{}, InvalidCode
	}

	desc := price.At(row, cols.Description).String()
	if utf8.RuneCountInString(desc) <= n.MinDescriptionLen {
		return price.Record{}, ShortDescription
	}
	if IsBoilerplate(desc) {
		return price.Record{}, Boilerplate
	}

	cost, ok := CoerceCost(price.At(row, cols.Cost))
	if !ok {
		if n.CostPolicy == CostReject {
			return price.Record{}, UnparsableCost
		}
		cost = decimal.Zero
	}
	if cost.IsNegative() {
		return price.Record{}, NegativeCost
	}

	return price.Record{
		Code:        code,
		Description: desc,
		Unit:        price.At(row, cols.Unit).String(),
		UnitCost:    cost,
		Region:      strings.TrimSpace(region),
		Year:        strings.TrimSpace(year),
	}, Accepted
}

// Code applies the regional prefix to short numeric codes. Codes that
// already carry a hyphen and anything else are returned trimmed.
func (n Normalizer) Code(raw string) string {
	code := strings.TrimSpace(raw)
	if reDigits.MatchString(code) && len(code) <= maxPrefixedDigits {
		return n.Prefix + code
	}
	return code
}

// IsBoilerplate reports table titles, exemption notices and bare date
// stamps that show up in the description column.
func IsBoilerplate(desc string) bool {
	f := textfold.Fold(desc)
	for _, re := range boilerplate {
		if re.MatchString(f) {
			return true
		}
	}
	return false
}
