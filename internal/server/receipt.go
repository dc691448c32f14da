package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	receiptdomain "github.com/openutility/wattshare/internal/receipt/domain"
)

type receiptFields struct {
	TokenNumber   *string `json:"token_number,omitempty"`
	AccountNumber *string `json:"account_number,omitempty"`
	KwhPurchased  float64 `json:"kwh_purchased"`
	EnergyCost    float64 `json:"energy_cost"`
	Debt          float64 `json:"debt"`
	Rea           float64 `json:"rea"`
	Vat           float64 `json:"vat"`
	TotalAmount   float64 `json:"total_amount"`
	Tendered      float64 `json:"tendered"`
	TransactionAt string  `json:"transaction_at"`
}

type createReceiptRequest struct {
	PurchaseID string `json:"purchase_id"`
	receiptFields
}

type matchReceiptsRequest struct {
	Rows       []receiptFields `json:"rows"`
	AutoImport bool            `json:"auto_import"`
}

func (s *Server) CreateReceipt(c *gin.Context) {
	var req createReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	transactionAt, err := parseDateParam(req.TransactionAt)
	if err != nil {
		AbortWithError(c, newValidationError("transaction_at", "invalid_transaction_at", "invalid transaction time"))
		return
	}

	resp, err := s.receiptSvc.Create(c.Request.Context(), receiptdomain.CreateRequest{
		PurchaseID:    strings.TrimSpace(req.PurchaseID),
		TokenNumber:   req.TokenNumber,
		AccountNumber: req.AccountNumber,
		KwhPurchased:  req.KwhPurchased,
		EnergyCost:    req.EnergyCost,
		Debt:          req.Debt,
		Rea:           req.Rea,
		Vat:           req.Vat,
		TotalAmount:   req.TotalAmount,
		Tendered:      req.Tendered,
		TransactionAt: transactionAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetReceipt(c *gin.Context) {
	resp, err := s.receiptSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListReceipts(c *gin.Context) {
	var query struct {
		From  string `form:"from"`
		To    string `form:"to"`
		Limit string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseDateParam(query.From)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from date"))
		return
	}
	to, err := parseDateParam(query.To)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to date"))
		return
	}
	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	resp, err := s.receiptSvc.List(c.Request.Context(), receiptdomain.ListRequest{
		From:  from,
		To:    to,
		Limit: limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MatchReceipts(c *gin.Context) {
	var req matchReceiptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rows := make([]receiptdomain.Row, 0, len(req.Rows))
	for i := range req.Rows {
		transactionAt, err := parseDateParam(req.Rows[i].TransactionAt)
		if err != nil {
			AbortWithError(c, newValidationError("rows", "invalid_transaction_at", "invalid transaction time"))
			return
		}
		rows = append(rows, receiptdomain.Row{
			TokenNumber:   req.Rows[i].TokenNumber,
			AccountNumber: req.Rows[i].AccountNumber,
			KwhPurchased:  req.Rows[i].KwhPurchased,
			EnergyCost:    req.Rows[i].EnergyCost,
			Debt:          req.Rows[i].Debt,
			Rea:           req.Rows[i].Rea,
			Vat:           req.Rows[i].Vat,
			TotalAmount:   req.Rows[i].TotalAmount,
			Tendered:      req.Rows[i].Tendered,
			TransactionAt: transactionAt,
		})
	}

	resp, err := s.receiptSvc.Match(c.Request.Context(), receiptdomain.MatchRequest{
		Rows:       rows,
		AutoImport: req.AutoImport,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
