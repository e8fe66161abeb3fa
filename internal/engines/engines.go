// Package engines implements the standard calculation-engine set the
// dispatcher invokes (spec.md §4.6). Every invoker here is a pure function
// of its Params — no I/O, no clock, no randomness — matching the engine
// contract in domain/engine. Results are decimal strings so
// internal/journalwriter's coerceMoney can parse them directly into the
// role binding's currency.
package engines

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/acctkernel/ledger/domain/engine"
)

// Standard returns the fixed engine-name -> invoker table cmd/ledgerd wires
// into the dispatcher (spec.md §9: "dynamic dispatch -> fixed engine-id ->
// invoker map").
func Standard() map[engine.Name]engine.Invoker {
	return map[engine.Name]engine.Invoker{
		engine.NameVariance:               Variance,
		engine.NameAllocation:             Allocation,
		engine.NameAllocationCascade:      AllocationCascade,
		engine.NameMatching:               Matching,
		engine.NameAging:                  Aging,
		engine.NameTax:                    Tax,
		engine.NameValuationFIFO:          ValuationFIFO,
		engine.NameValuationLIFO:          ValuationLIFO,
		engine.NameValuationWeightedAvg:   ValuationWeightedAverage,
		engine.NameValuationStandard:      ValuationStandard,
		engine.NameReconciliation:         Reconciliation,
		engine.NameCorrection:             Correction,
		engine.NameBilling:                Billing,
		engine.NameICE:                    ICE,
		engine.NameApprovalRuleEvaluation: ApprovalRuleEvaluation,
	}
}

func decimalParam(params engine.Params, key string) (decimal.Decimal, error) {
	v, ok := params[key]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("engines: missing parameter %q", key)
	}
	switch t := v.(type) {
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("engines: parameter %q is not a decimal string: %w", key, err)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("engines: parameter %q has unsupported type %T", key, v)
	}
}

func stringParam(params engine.Params, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("engines: missing parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("engines: parameter %q is not a string", key)
	}
	return s, nil
}

// Variance computes the absolute difference between "actual" and
// "expected" and reports the signed direction (spec.md §4.6 "variance
// engine").
func Variance(params engine.Params) (engine.Result, error) {
	actual, err := decimalParam(params, "actual")
	if err != nil {
		return engine.Result{}, err
	}
	expected, err := decimalParam(params, "expected")
	if err != nil {
		return engine.Result{}, err
	}
	diff := actual.Sub(expected)
	return engine.Result{Values: map[string]interface{}{
		"amount":    diff.Abs().String(),
		"direction": sign(diff),
	}}, nil
}

func sign(d decimal.Decimal) string {
	switch d.Sign() {
	case 1:
		return "favorable"
	case -1:
		return "unfavorable"
	default:
		return "none"
	}
}

// allocationTarget is one named share of a proportional split; "weights"
// params carry these as a list so the engine never hardcodes target names.
type allocationTarget struct {
	Name   string
	Weight decimal.Decimal
}

func weightTargets(params engine.Params) ([]allocationTarget, error) {
	raw, ok := params["weights"]
	if !ok {
		return nil, fmt.Errorf("engines: missing parameter %q", "weights")
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("engines: parameter %q must be an object of name -> weight", "weights")
	}
	targets := make([]allocationTarget, 0, len(m))
	for name, v := range m {
		var w decimal.Decimal
		switch t := v.(type) {
		case string:
			parsed, err := decimal.NewFromString(t)
			if err != nil {
				return nil, fmt.Errorf("engines: weight %q is not a decimal string: %w", name, err)
			}
			w = parsed
		case float64:
			w = decimal.NewFromFloat(t)
		default:
			return nil, fmt.Errorf("engines: weight %q has unsupported type %T", name, v)
		}
		targets = append(targets, allocationTarget{Name: name, Weight: w})
	}
	return targets, nil
}

// Allocation splits "total" proportionally across the named "weights",
// rounding every share but the last to avoid fractional-cent residue, and
// assigning the last target whatever remains so the shares always sum
// exactly to the total (spec.md §4.6 "allocation engine").
func Allocation(params engine.Params) (engine.Result, error) {
	total, err := decimalParam(params, "total")
	if err != nil {
		return engine.Result{}, err
	}
	targets, err := weightTargets(params)
	if err != nil {
		return engine.Result{}, err
	}
	if len(targets) == 0 {
		return engine.Result{}, fmt.Errorf("engines: allocation requires at least one weighted target")
	}

	weightSum := decimal.Zero
	for _, t := range targets {
		weightSum = weightSum.Add(t.Weight)
	}
	if weightSum.IsZero() {
		return engine.Result{}, fmt.Errorf("engines: allocation weights sum to zero")
	}

	values := make(map[string]interface{}, len(targets))
	allocated := decimal.Zero
	for i, t := range targets {
		if i == len(targets)-1 {
			values[t.Name] = total.Sub(allocated).String()
			continue
		}
		share := total.Mul(t.Weight).Div(weightSum).Round(2)
		allocated = allocated.Add(share)
		values[t.Name] = share.String()
	}
	return engine.Result{Values: values}, nil
}

type cascadeBucket struct {
	Name     string
	Capacity decimal.Decimal
}

// AllocationCascade fills "buckets" (ordered name/capacity pairs) in
// sequence from "total" until it is exhausted, the waterfall pattern used
// for tiered cost absorption (spec.md §4.6 "allocation_cascade engine").
func AllocationCascade(params engine.Params) (engine.Result, error) {
	total, err := decimalParam(params, "total")
	if err != nil {
		return engine.Result{}, err
	}
	rawBuckets, ok := params["buckets"]
	if !ok {
		return engine.Result{}, fmt.Errorf("engines: missing parameter %q", "buckets")
	}
	list, ok := rawBuckets.([]interface{})
	if !ok {
		return engine.Result{}, fmt.Errorf("engines: parameter %q must be an ordered list", "buckets")
	}

	buckets := make([]cascadeBucket, 0, len(list))
	for _, raw := range list {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return engine.Result{}, fmt.Errorf("engines: bucket entries must be objects")
		}
		name, _ := m["name"].(string)
		capStr, _ := m["capacity"].(string)
		cap, err := decimal.NewFromString(capStr)
		if err != nil {
			return engine.Result{}, fmt.Errorf("engines: bucket %q capacity is not a decimal string: %w", name, err)
		}
		buckets = append(buckets, cascadeBucket{Name: name, Capacity: cap})
	}

	remaining := total
	values := make(map[string]interface{}, len(buckets))
	for _, b := range buckets {
		if remaining.LessThanOrEqual(decimal.Zero) {
			values[b.Name] = "0"
			continue
		}
		fill := decimal.Min(remaining, b.Capacity)
		values[b.Name] = fill.String()
		remaining = remaining.Sub(fill)
	}
	values["unallocated"] = remaining.String()
	return engine.Result{Values: values}, nil
}

// Matching three-way matches "po_amount", "receipt_amount", and
// "invoice_amount", reporting whether po/receipt and receipt/invoice each
// differ by at most "tolerance"; po and invoice are not compared directly
// (spec.md §4.6 "matching engine").
func Matching(params engine.Params) (engine.Result, error) {
	po, err := decimalParam(params, "po_amount")
	if err != nil {
		return engine.Result{}, err
	}
	receipt, err := decimalParam(params, "receipt_amount")
	if err != nil {
		return engine.Result{}, err
	}
	invoice, err := decimalParam(params, "invoice_amount")
	if err != nil {
		return engine.Result{}, err
	}
	tolerance := decimal.NewFromFloat(0.01)
	if raw, ok := params["tolerance"]; ok {
		tolerance, err = decimalParam(engine.Params{"tolerance": raw}, "tolerance")
		if err != nil {
			return engine.Result{}, err
		}
	}

	poReceiptDiff := po.Sub(receipt).Abs()
	receiptInvoiceDiff := receipt.Sub(invoice).Abs()
	matched := poReceiptDiff.LessThanOrEqual(tolerance) && receiptInvoiceDiff.LessThanOrEqual(tolerance)

	return engine.Result{Values: map[string]interface{}{
		"matched":                  matched,
		"po_receipt_variance":      poReceiptDiff.String(),
		"receipt_invoice_variance": receiptInvoiceDiff.String(),
		"amount":                   invoice.String(),
	}}, nil
}

// Aging buckets "amount" into 30/60/90/90+ day buckets keyed by
// "days_outstanding" (spec.md §4.6 "aging engine").
func Aging(params engine.Params) (engine.Result, error) {
	amount, err := decimalParam(params, "amount")
	if err != nil {
		return engine.Result{}, err
	}
	days, err := decimalParam(params, "days_outstanding")
	if err != nil {
		return engine.Result{}, err
	}

	bucket := "current"
	switch {
	case days.GreaterThan(decimal.NewFromInt(90)):
		bucket = "90_plus"
	case days.GreaterThan(decimal.NewFromInt(60)):
		bucket = "61_90"
	case days.GreaterThan(decimal.NewFromInt(30)):
		bucket = "31_60"
	}
	return engine.Result{Values: map[string]interface{}{
		"amount": amount.String(),
		"bucket": bucket,
	}}, nil
}

// Tax applies "rate" to "base" (spec.md §4.6 "tax engine").
func Tax(params engine.Params) (engine.Result, error) {
	base, err := decimalParam(params, "base")
	if err != nil {
		return engine.Result{}, err
	}
	rate, err := decimalParam(params, "rate")
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{Values: map[string]interface{}{
		"amount": base.Mul(rate).Round(4).String(),
	}}, nil
}

// valuationConsume walks lots in the given order consuming qty from each
// until exhausted, summing cost at each lot's unit cost — the shared core
// of the FIFO/LIFO valuation engines (spec.md §4.6, invariants C1-C3).
func valuationConsume(params engine.Params, reverse bool) (engine.Result, error) {
	qty, err := decimalParam(params, "quantity")
	if err != nil {
		return engine.Result{}, err
	}
	lots, err := lotQuantities(params)
	if err != nil {
		return engine.Result{}, err
	}
	if reverse {
		for i, j := 0, len(lots)-1; i < j; i, j = i+1, j-1 {
			lots[i], lots[j] = lots[j], lots[i]
		}
	}

	remaining := qty
	cost := decimal.Zero
	consumed := make([]interface{}, 0, len(lots))
	for _, l := range lots {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		take := decimal.Min(remaining, l.qty)
		cost = cost.Add(take.Mul(l.unitCost))
		remaining = remaining.Sub(take)
		consumed = append(consumed, map[string]interface{}{
			"lot_id":   l.lotID,
			"quantity": take.String(),
		})
	}
	if remaining.GreaterThan(decimal.Zero) {
		return engine.Result{}, fmt.Errorf("engines: insufficient cost lot quantity to cover %s units", qty.String())
	}
	return engine.Result{Values: map[string]interface{}{
		"amount":   cost.Round(4).String(),
		"consumed": consumed,
	}}, nil
}

type lotQty struct {
	lotID    string
	qty      decimal.Decimal
	unitCost decimal.Decimal
}

func lotQuantities(params engine.Params) ([]lotQty, error) {
	raw, ok := params["lots"]
	if !ok {
		return nil, fmt.Errorf("engines: missing parameter %q", "lots")
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("engines: parameter %q must be an ordered list", "lots")
	}
	lots := make([]lotQty, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("engines: lot entries must be objects")
		}
		qtyStr, _ := m["remaining_qty"].(string)
		costStr, _ := m["unit_cost"].(string)
		qty, err := decimal.NewFromString(qtyStr)
		if err != nil {
			return nil, fmt.Errorf("engines: lot remaining_qty is not a decimal string: %w", err)
		}
		cost, err := decimal.NewFromString(costStr)
		if err != nil {
			return nil, fmt.Errorf("engines: lot unit_cost is not a decimal string: %w", err)
		}
		lotID, _ := m["lot_id"].(string)
		lots = append(lots, lotQty{lotID: lotID, qty: qty, unitCost: cost})
	}
	return lots, nil
}

// ValuationFIFO consumes cost lots oldest-first.
func ValuationFIFO(params engine.Params) (engine.Result, error) {
	return valuationConsume(params, false)
}

// ValuationLIFO consumes cost lots newest-first.
func ValuationLIFO(params engine.Params) (engine.Result, error) {
	return valuationConsume(params, true)
}

// ValuationWeightedAverage values "quantity" at the quantity-weighted
// average unit cost across every lot, the blended-cost alternative to
// layer consumption (spec.md §4.6 "valuation_weighted_average").
func ValuationWeightedAverage(params engine.Params) (engine.Result, error) {
	qty, err := decimalParam(params, "quantity")
	if err != nil {
		return engine.Result{}, err
	}
	lots, err := lotQuantities(params)
	if err != nil {
		return engine.Result{}, err
	}

	totalQty := decimal.Zero
	totalCost := decimal.Zero
	for _, l := range lots {
		totalQty = totalQty.Add(l.qty)
		totalCost = totalCost.Add(l.qty.Mul(l.unitCost))
	}
	if totalQty.IsZero() {
		return engine.Result{}, fmt.Errorf("engines: no on-hand quantity to average")
	}
	avgUnitCost := totalCost.Div(totalQty)
	return engine.Result{Values: map[string]interface{}{
		"amount":    qty.Mul(avgUnitCost).Round(4).String(),
		"unit_cost": avgUnitCost.Round(4).String(),
	}}, nil
}

// ValuationStandard values "quantity" at a fixed "standard_cost" and
// reports the variance against "actual_cost" when supplied, the
// standard-costing alternative to layer/average valuation (spec.md §4.6
// "valuation_standard").
func ValuationStandard(params engine.Params) (engine.Result, error) {
	qty, err := decimalParam(params, "quantity")
	if err != nil {
		return engine.Result{}, err
	}
	standardCost, err := decimalParam(params, "standard_cost")
	if err != nil {
		return engine.Result{}, err
	}
	values := map[string]interface{}{
		"amount": qty.Mul(standardCost).Round(4).String(),
	}
	if raw, ok := params["actual_cost"]; ok {
		actual, err := decimalParam(engine.Params{"actual_cost": raw}, "actual_cost")
		if err != nil {
			return engine.Result{}, err
		}
		values["variance"] = qty.Mul(standardCost.Sub(actual)).Round(4).String()
	}
	return engine.Result{Values: values}, nil
}

// Reconciliation reports the residual between "subledger_total" and
// "control_total" (spec.md §4.6 "reconciliation engine"; the durable
// per-currency version of this check lives in internal/reconcile — this
// engine exists for policies that want the figure surfaced on the journal
// entry itself, e.g. a reconciling adjustment line).
func Reconciliation(params engine.Params) (engine.Result, error) {
	subledgerTotal, err := decimalParam(params, "subledger_total")
	if err != nil {
		return engine.Result{}, err
	}
	controlTotal, err := decimalParam(params, "control_total")
	if err != nil {
		return engine.Result{}, err
	}
	residual := subledgerTotal.Sub(controlTotal)
	return engine.Result{Values: map[string]interface{}{
		"amount": residual.Abs().String(),
	}}, nil
}

// Correction passes "amount" through unchanged — a correction posting's
// amount is the adjustment itself, not a derived quantity (spec.md §4.6
// "correction engine").
func Correction(params engine.Params) (engine.Result, error) {
	amount, err := decimalParam(params, "amount")
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{Values: map[string]interface{}{
		"amount": amount.String(),
	}}, nil
}

// Billing multiplies "rate" by "quantity" (spec.md §4.6 "billing engine").
func Billing(params engine.Params) (engine.Result, error) {
	rate, err := decimalParam(params, "rate")
	if err != nil {
		return engine.Result{}, err
	}
	qty, err := decimalParam(params, "quantity")
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{Values: map[string]interface{}{
		"amount": rate.Mul(qty).Round(4).String(),
	}}, nil
}

// ICE (intercompany elimination) negates "amount" so the consolidating
// entity's posting nets the intercompany balance to zero (spec.md §4.6
// "ice engine").
func ICE(params engine.Params) (engine.Result, error) {
	amount, err := decimalParam(params, "amount")
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{Values: map[string]interface{}{
		"amount": amount.Neg().String(),
	}}, nil
}

// ApprovalRuleEvaluation resolves the required approval role for "amount"
// against a simple threshold table (spec.md §4.6 "approval_rule_evaluation
// engine"; thresholds come from the policy's engine parameter mapping, not
// a hardcoded table, since they are business configuration).
func ApprovalRuleEvaluation(params engine.Params) (engine.Result, error) {
	amount, err := decimalParam(params, "amount")
	if err != nil {
		return engine.Result{}, err
	}
	threshold, err := decimalParam(params, "threshold")
	if err != nil {
		return engine.Result{}, err
	}
	role, err := stringParam(params, "required_role")
	if err != nil {
		return engine.Result{}, err
	}
	requiresApproval := amount.GreaterThan(threshold)
	values := map[string]interface{}{
		"requires_approval": requiresApproval,
	}
	if requiresApproval {
		values["required_role"] = role
	}
	return engine.Result{Values: values}, nil
}
