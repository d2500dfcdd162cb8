package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pranjitbis/freelancer-ledger/internal/ledgererr"
	"github.com/pranjitbis/freelancer-ledger/internal/service"
	"github.com/shopspring/decimal"
)

// Services groups the workflow entry points the router exposes.
type Services struct {
	Accounts *service.AccountService
	Payments *service.PaymentService
	Payouts  *service.PayoutService
	Refunds  *service.RefundService
}

func RegisterHandlers(r *gin.Engine, svc Services) {
	v1 := r.Group("/v1")
	{
		v1.POST("/payments/:id/settle", settlePaymentHandler(svc.Payments))
		v1.POST("/payouts", createPayoutHandler(svc.Payouts))
		v1.POST("/payouts/:id/resolve", resolvePayoutHandler(svc.Payouts))
		v1.POST("/payouts/:id/paid", markPayoutPaidHandler(svc.Payouts))
		v1.POST("/refunds", createRefundHandler(svc.Refunds))
		v1.POST("/refunds/:id/resolve", resolveRefundHandler(svc.Refunds))
		v1.GET("/accounts/:id/balance", balanceHandler(svc.Accounts))
		v1.GET("/accounts/:id/entries", entriesHandler(svc.Accounts))
	}
}

// statusFor is the one place error kinds become HTTP status codes.
func statusFor(kind ledgererr.Kind) int {
	switch kind {
	case ledgererr.KindNotFound:
		return http.StatusNotFound
	case ledgererr.KindForbidden:
		return http.StatusForbidden
	case ledgererr.KindInvalidState:
		return http.StatusConflict
	case ledgererr.KindInvalidAmount, ledgererr.KindBelowMinimum:
		return http.StatusBadRequest
	case ledgererr.KindInsufficientFunds, ledgererr.KindBankNotVerified, ledgererr.KindAmountExceedsPayment:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := ledgererr.KindOf(err)
	c.JSON(statusFor(kind), gin.H{"error": err.Error(), "kind": string(kind)})
}

func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func parseAmount(c *gin.Context, raw string) (decimal.Decimal, bool) {
	amt, err := decimal.NewFromString(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return decimal.Zero, false
	}
	return amt, true
}

func settlePaymentHandler(svc *service.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		// actor identity is established by the auth layer in front of us
		actorID, err := strconv.ParseUint(c.GetHeader("X-Actor-ID"), 10, 64)
		if err != nil || actorID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing actor"})
			return
		}
		pr, err := svc.Settle(c, id, actorID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, pr)
	}
}

type createPayoutReq struct {
	OwnerID      uint64 `json:"owner_id" binding:"required"`
	BankDetailID uint64 `json:"bank_detail_id" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
}

func createPayoutHandler(svc *service.PayoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPayoutReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, ok := parseAmount(c, req.Amount)
		if !ok {
			return
		}
		p, err := svc.Create(c, req.OwnerID, req.BankDetailID, amt)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

type decisionReq struct {
	Decision string `json:"decision" binding:"required"`
}

func resolvePayoutHandler(svc *service.PayoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req decisionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p, err := svc.Resolve(c, id, req.Decision)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func markPayoutPaidHandler(svc *service.PayoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		p, err := svc.MarkPaid(c, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

type createRefundReq struct {
	PaymentRequestID uint64 `json:"payment_request_id" binding:"required"`
	Amount           string `json:"amount" binding:"required"`
	Reason           string `json:"reason"`
}

func createRefundHandler(svc *service.RefundService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRefundReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, ok := parseAmount(c, req.Amount)
		if !ok {
			return
		}
		rr, err := svc.Create(c, req.PaymentRequestID, amt, req.Reason)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rr)
	}
}

func resolveRefundHandler(svc *service.RefundService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req decisionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rr, err := svc.Resolve(c, id, req.Decision)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rr)
	}
}

func balanceHandler(svc *service.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		bal, err := svc.Balance(c, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal})
	}
}

func entriesHandler(svc *service.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		sinceStr := c.DefaultQuery("since", time.Now().Add(-24*time.Hour).Format(time.RFC3339))
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		entries, err := svc.History(c, id, limit, since)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}
