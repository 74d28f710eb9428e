package campussvc

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core/fee"
)

type (
	settleSemesterPayload struct {
		StudentID string          `json:"studentId"`
		InvoiceID string          `json:"invoiceId"`
		Semester  int             `json:"semester"`
		Amount    decimal.Decimal `json:"amount"`
	}

	balancePayload struct {
		StudentID string          `json:"studentId"`
		Balance   decimal.Decimal `json:"balance"`
		Due       decimal.Decimal `json:"due"`
	}
)

// GetBalance reads GET /students/{id}/balance, answered either as a bare number or as {"balance": n}.
func (c *Client) GetBalance(ctx context.Context, studentID string) (decimal.Decimal, error) {
	var payload interface{}
	if err := c.do(ctx, rest.Get, "/students/"+studentID+"/balance", nil, nil, &payload); err != nil {
		if isNotFound(err) {
			return decimal.Zero, fee.ErrBalanceNotFound
		}
		return decimal.Zero, errors.Wrap(err, "getting balance")
	}

	if m, ok := payload.(map[string]interface{}); ok {
		rec := newRecord(m)
		if _, ok := rec.lookup("balance", "balanceamount", "amount"); !ok {
			return decimal.Zero, fee.ErrBalanceNotFound
		}
		return rec.amount("balance", "balanceamount", "amount"), nil
	}
	if payload == nil {
		return decimal.Zero, fee.ErrBalanceNotFound
	}
	return toDecimal(payload), nil
}

// SettleSemester calls the dedicated settlement endpoint. The backend reports already settled
// invoices with {"applied": false} or {"alreadySettled": true}.
func (c *Client) SettleSemester(ctx context.Context, req fee.SettleRequest) (bool, error) {
	var payload interface{}
	body := settleSemesterPayload{StudentID: req.StudentID, InvoiceID: req.InvoiceID, Semester: req.Semester, Amount: req.Amount}
	if err := c.do(ctx, rest.Post, "/students/settle-semester", nil, body, &payload); err != nil {
		return false, errors.Wrapf(fee.ErrSettlementUnavailable, "%v", err)
	}

	m, ok := payload.(map[string]interface{})
	if !ok {
		return true, nil
	}
	rec := newRecord(m)
	if _, ok := rec.lookup("success", "ok"); ok && !rec.flag("success", "ok") {
		return false, errors.Wrap(fee.ErrSettlementUnavailable, "settlement rejected")
	}
	if rec.flag("alreadysettled") {
		return false, nil
	}
	if _, ok := rec.lookup("applied"); ok {
		return rec.flag("applied"), nil
	}
	return true, nil
}

// OverwriteBalance writes through PUT /students/balance,
// falling back to the legacy student update endpoints.
// The campus backend keeps no settlement records: req.InvoiceID is not recorded.
func (c *Client) OverwriteBalance(ctx context.Context, req fee.SettleRequest, balance decimal.Decimal) error {
	body := balancePayload{StudentID: req.StudentID, Balance: balance, Due: req.Due}
	err := c.do(ctx, rest.Put, "/students/balance", nil, body, nil)
	if err == nil {
		return nil
	}
	c.logger.Warn("balance endpoint rejected the update, trying student updates", err)

	return c.updateStudent(ctx, req.StudentID, map[string]interface{}{"balance": balance, "due": req.Due})
}
