package echoapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fee"
)

const dateLayout = "2006-01-02"

type feeApi struct {
	svc fee.ServiceInterface
}

func registerFeeAPI(g *echo.Group, svc fee.ServiceInterface) {
	api := feeApi{svc: svc}

	sg := g.Group("/students/:id")
	sg.GET("/draft", api.draft)
	sg.GET("/balance", api.balance)
	sg.POST("/progress", api.progress)

	g.GET("/balances", api.balances)
	g.POST("/progress", api.progressAll)

	ig := g.Group("/invoices")
	ig.GET("", api.queryInvoices)
	ig.POST("", api.createInvoice)
	ig.GET("/:id", api.retrieveInvoice)
	ig.PUT("/:id", api.updateInvoice)

	g.POST("/fee-schedules/reload", api.reloadSchedules)
}

type (
	DraftRequest struct {
		Semester  int    `query:"semester"`
		InvoiceID string `query:"invoice_id"`
	}

	InvoiceQuery struct {
		StudentID string `query:"student_id"`
		Paid      string `query:"paid"`
		Semester  int    `query:"semester"`
	}

	BalancesRequest struct {
		IDs []string `query:"id"`
	}

	BalanceResponse struct {
		StudentID string          `json:"student_id"`
		Balance   decimal.Decimal `json:"balance"`
	}
)

// Filter converts the query into an InvoiceFilter. paid accepts anything strconv.ParseBool does.
func (q InvoiceQuery) Filter() (*fee.InvoiceFilter, error) {
	filter := &fee.InvoiceFilter{
		StudentID: core.CleanString(q.StudentID),
		Semester:  q.Semester,
	}
	if p := core.CleanString(q.Paid); p != "" {
		paid, err := strconv.ParseBool(p)
		if err != nil {
			return nil, core.NewValidationError(err, core.FieldError{Field: "paid", Error: "must be true or false"})
		}
		filter.Paid = &paid
	}
	return filter, nil
}

// IDList splits comma separated values: ?id=S1,S2&id=S3
func (br BalancesRequest) IDList() []string {
	var ids []string
	for _, val := range br.IDs {
		for _, id := range strings.Split(val, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// parseToday reads the optional ?today=YYYY-MM-DD parameter.
func parseToday(ctx echo.Context) (time.Time, error) {
	val := core.CleanString(ctx.QueryParam("today"))
	if val == "" {
		return fee.NowFunc().UTC(), nil
	}
	today, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, core.NewValidationError(err, core.FieldError{Field: "today", Error: "must be a YYYY-MM-DD date"})
	}
	return today, nil
}

// Handlers

func (api *feeApi) draft(ctx echo.Context) error {
	var data DraftRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DraftRequest")
	}
	d, err := api.svc.Draft(ctx.Request().Context(), ctx.Param("id"), data.Semester, core.CleanString(data.InvoiceID))
	if err != nil {
		return errors.Wrap(err, "drafting invoice")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *feeApi) balance(ctx echo.Context) error {
	studentID := core.CleanString(ctx.Param("id"))
	bal, err := api.svc.Balance(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "reading balance")
	}
	return ctx.JSON(http.StatusOK, BalanceResponse{StudentID: studentID, Balance: bal})
}

func (api *feeApi) balances(ctx echo.Context) error {
	var data BalancesRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BalancesRequest")
	}
	readings := api.svc.Balances(ctx.Request().Context(), data.IDList())
	if readings == nil {
		readings = []fee.BalanceReading{}
	}
	return ctx.JSON(http.StatusOK, readings)
}

func (api *feeApi) progress(ctx echo.Context) error {
	today, err := parseToday(ctx)
	if err != nil {
		return err
	}
	prog, err := api.svc.Progress(ctx.Request().Context(), ctx.Param("id"), today)
	if err != nil {
		return errors.Wrap(err, "evaluating progression")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *feeApi) progressAll(ctx echo.Context) error {
	today, err := parseToday(ctx)
	if err != nil {
		return err
	}
	progs, err := api.svc.ProgressAll(ctx.Request().Context(), today)
	if err != nil {
		return errors.Wrap(err, "evaluating progressions")
	}
	if progs == nil {
		progs = []fee.Progression{}
	}
	return ctx.JSON(http.StatusOK, progs)
}

func (api *feeApi) queryInvoices(ctx echo.Context) error {
	var query InvoiceQuery
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to InvoiceQuery")
	}
	filter, err := query.Filter()
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	invoices, err := api.svc.Invoices(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying invoices")
	}
	if invoices == nil {
		invoices = []fee.Invoice{}
	}
	return ctx.JSON(http.StatusOK, invoices)
}

func (api *feeApi) retrieveInvoice(ctx echo.Context) error {
	inv, err := api.svc.GetInvoice(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting invoice")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *feeApi) createInvoice(ctx echo.Context) error {
	var data fee.SubmitInvoice
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitInvoice")
	}
	result, err := api.svc.Submit(ctx.Request().Context(), "", data)
	if err != nil {
		return errors.Wrap(err, "creating invoice")
	}
	return ctx.JSON(http.StatusCreated, result)
}

func (api *feeApi) updateInvoice(ctx echo.Context) error {
	id := core.CleanString(ctx.Param("id"))
	if id == "" {
		return errHttpNotFound
	}
	var data fee.SubmitInvoice
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitInvoice")
	}
	result, err := api.svc.Submit(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating invoice")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *feeApi) reloadSchedules(ctx echo.Context) error {
	if err := api.svc.ReloadSchedules(ctx.Request().Context()); err != nil {
		return errors.Wrap(err, "reloading fee schedules")
	}
	return ctx.NoContent(http.StatusNoContent)
}
