package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/models"
)

// The untyped filter map from the API is parsed once into a closed set of
// typed filter variants, then compiled into SQL predicates. An unknown key
// or a value that fails to parse drops that single predicate with a log
// line; the query always runs with whatever remains.

// Filter is one compiled predicate over the transactions table.
type Filter interface {
	apply(b *builder)
}

// builder accumulates AND-combined conditions with $n placeholders.
type builder struct {
	conds []string
	args  []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) add(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *builder) where() string {
	return strings.Join(b.conds, " AND ")
}

type enumEq struct {
	column string
	value  string
}

func (f enumEq) apply(b *builder) {
	b.add(fmt.Sprintf("%s = %s", f.column, b.bind(f.value)))
}

type enumIn struct {
	column string
	values []string
}

func (f enumIn) apply(b *builder) {
	ps := make([]string, len(f.values))
	for i, v := range f.values {
		ps[i] = b.bind(v)
	}
	b.add(fmt.Sprintf("%s IN (%s)", f.column, strings.Join(ps, ", ")))
}

type exactMatch struct {
	column string
	value  string
}

func (f exactMatch) apply(b *builder) {
	b.add(fmt.Sprintf("%s = %s", f.column, b.bind(f.value)))
}

// pairIn matches either side of a symmetric column pair, e.g. an account id
// appearing as source or target.
type pairIn struct {
	columns [2]string
	values  []string
}

func (f pairIn) apply(b *builder) {
	ps := make([]string, len(f.values))
	for i, v := range f.values {
		ps[i] = b.bind(v)
	}
	in := strings.Join(ps, ", ")
	b.add(fmt.Sprintf("(%s IN (%s) OR %s IN (%s))", f.columns[0], in, f.columns[1], in))
}

type amountCmp struct {
	op    string
	value int64
}

func (f amountCmp) apply(b *builder) {
	b.add(fmt.Sprintf("amount %s %s", f.op, b.bind(f.value)))
}

type amountRange struct {
	min, max int64
}

func (f amountRange) apply(b *builder) {
	b.add(fmt.Sprintf("amount BETWEEN %s AND %s", b.bind(f.min), b.bind(f.max)))
}

type textContains struct {
	column string
	value  string
}

func (f textContains) apply(b *builder) {
	b.add(fmt.Sprintf("%s ILIKE %s", f.column, b.bind("%"+f.value+"%")))
}

type dateCmp struct {
	column string
	op     string
	value  time.Time
}

func (f dateCmp) apply(b *builder) {
	b.add(fmt.Sprintf("%s %s %s", f.column, f.op, b.bind(f.value)))
}

type dateRange struct {
	column   string
	from, to time.Time
}

func (f dateRange) apply(b *builder) {
	b.add(fmt.Sprintf("%s BETWEEN %s AND %s", f.column, b.bind(f.from), b.bind(f.to)))
}

// boolFlag tests the presence of an optional column ("has X").
type boolFlag struct {
	column  string
	present bool
}

func (f boolFlag) apply(b *builder) {
	if f.present {
		b.add(f.column + " IS NOT NULL")
	} else {
		b.add(f.column + " IS NULL")
	}
}

// textSearch OR-combines case-insensitive substring matches across the
// free-text columns.
type textSearch struct {
	value string
}

var searchColumns = []string{
	"description", "notes", "reference_number",
	"external_reference", "external_provider",
	"from_account_number", "to_account_number",
}

func (f textSearch) apply(b *builder) {
	p := b.bind("%" + f.value + "%")
	parts := make([]string, len(searchColumns))
	for i, col := range searchColumns {
		parts[i] = fmt.Sprintf("%s ILIKE %s", col, p)
	}
	b.add("(" + strings.Join(parts, " OR ") + ")")
}

var (
	typeValues = map[string]bool{
		string(models.TypeTransfer): true, string(models.TypeDeposit): true,
		string(models.TypeWithdrawal): true, string(models.TypePayment): true,
		string(models.TypeRefund): true, string(models.TypeFee): true,
		string(models.TypeInterest): true,
	}
	statusValues = map[string]bool{
		string(models.StatusPending): true, string(models.StatusProcessing): true,
		string(models.StatusCompleted): true, string(models.StatusFailed): true,
		string(models.StatusCancelled): true, string(models.StatusReversed): true,
	}
	directionValues = map[string]bool{
		string(models.DirectionDebit): true, string(models.DirectionCredit): true,
	}
	transferTypeValues = map[string]bool{
		string(models.TransferInternal): true, string(models.TransferExternal): true,
	}
)

// ParseFilters turns the untyped key/value map into typed filters. Bad
// values and unknown keys are logged and skipped, never fatal.
func ParseFilters(filters map[string]string, logger *logrus.Logger) []Filter {
	var out []Filter
	skip := func(key, value, reason string) {
		logger.WithFields(logrus.Fields{
			"filter": key,
			"value":  value,
			"reason": reason,
		}).Warn("skipping transaction filter")
	}

	for key, value := range filters {
		var f Filter
		var err error
		switch key {
		case "type":
			f, err = parseEnum("type", value, typeValues)
		case "status":
			f, err = parseEnum("status", value, statusValues)
		case "direction":
			f, err = parseEnum("direction", value, directionValues)
		case "transfer_type":
			f, err = parseEnum("transfer_type", value, transferTypeValues)

		case "account_id":
			f = pairIn{columns: [2]string{"from_account_id", "to_account_id"}, values: splitCSV(value)}
		case "account_number":
			f = pairIn{columns: [2]string{"from_account_number", "to_account_number"}, values: splitCSV(value)}
		case "from_account_id":
			f = exactMatch{column: "from_account_id", value: value}
		case "to_account_id":
			f = exactMatch{column: "to_account_id", value: value}
		case "from_account_number":
			f = exactMatch{column: "from_account_number", value: value}
		case "to_account_number":
			f = exactMatch{column: "to_account_number", value: value}
		case "category_id":
			f = exactMatch{column: "category_id", value: value}
		case "external_reference":
			f = exactMatch{column: "external_reference", value: value}
		case "external_provider":
			f = exactMatch{column: "external_provider", value: value}

		case "amount":
			f, err = parseAmount(value, "=")
		case "min_amount":
			f, err = parseAmount(value, ">=")
		case "max_amount":
			f, err = parseAmount(value, "<=")
		case "amount_gt":
			f, err = parseAmount(value, ">")
		case "amount_lt":
			f, err = parseAmount(value, "<")

		case "description":
			f = textContains{column: "description", value: value}
		case "notes":
			f = textContains{column: "notes", value: value}

		case "created_after":
			f, err = parseDateCmp("created_at", ">=", value)
		case "created_before":
			f, err = parseDateCmp("created_at", "<=", value)
		case "created_at":
			f, err = parseDateRange("created_at", value)

		case "has_category":
			f, err = parseBoolFlag("category_id", value)
		case "has_external_reference":
			f, err = parseBoolFlag("external_reference", value)

		default:
			skip(key, value, "unknown filter key")
			continue
		}

		if err != nil {
			skip(key, value, err.Error())
			continue
		}
		out = append(out, f)
	}
	return out
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseEnum(column, value string, valid map[string]bool) (Filter, error) {
	values := splitCSV(strings.ToUpper(value))
	if len(values) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	for _, v := range values {
		if !valid[v] {
			return nil, fmt.Errorf("invalid %s value %q", column, v)
		}
	}
	if len(values) == 1 {
		return enumEq{column: column, value: values[0]}, nil
	}
	return enumIn{column: column, values: values}, nil
}

// parseAmount accepts a plain integer or, for the "=" key, a "min,max"
// range form.
func parseAmount(value, op string) (Filter, error) {
	if op == "=" && strings.Contains(value, ",") {
		parts := strings.SplitN(value, ",", 2)
		min, err1 := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		max, err2 := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("invalid amount range")
		}
		return amountRange{min: min, max: max}, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount")
	}
	return amountCmp{op: op, value: n}, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

func parseDateCmp(column, op, value string) (Filter, error) {
	t, err := parseDate(value)
	if err != nil {
		return nil, err
	}
	return dateCmp{column: column, op: op, value: t}, nil
}

func parseDateRange(column, value string) (Filter, error) {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("date range needs two values")
	}
	from, err := parseDate(parts[0])
	if err != nil {
		return nil, err
	}
	to, err := parseDate(parts[1])
	if err != nil {
		return nil, err
	}
	return dateRange{column: column, from: from, to: to}, nil
}

func parseBoolFlag(column, value string) (Filter, error) {
	present, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid boolean")
	}
	return boolFlag{column: column, present: present}, nil
}
