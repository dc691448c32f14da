package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	purchasedomain "github.com/openutility/wattshare/internal/purchase/domain"
)

type contributionFields struct {
	UserID             string  `json:"user_id"`
	ContributionAmount float64 `json:"contribution_amount"`
	MeterReading       float64 `json:"meter_reading"`
	TokensConsumed     float64 `json:"tokens_consumed"`
}

type createPurchaseRequest struct {
	UserID       string              `json:"user_id"`
	TotalTokens  float64             `json:"total_tokens"`
	TotalPayment float64             `json:"total_payment"`
	MeterReading float64             `json:"meter_reading"`
	PurchaseDate string              `json:"purchase_date"`
	IsEmergency  bool                `json:"is_emergency"`
	Contribution *contributionFields `json:"contribution,omitempty"`
}

func (s *Server) CreatePurchase(c *gin.Context) {
	var req createPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	purchaseDate, err := parseDateParam(req.PurchaseDate)
	if err != nil {
		AbortWithError(c, newValidationError("purchase_date", "invalid_purchase_date", "invalid purchase date"))
		return
	}

	createReq := purchasedomain.CreateRequest{
		UserID:       strings.TrimSpace(req.UserID),
		TotalTokens:  req.TotalTokens,
		TotalPayment: req.TotalPayment,
		MeterReading: req.MeterReading,
		PurchaseDate: purchaseDate,
		IsEmergency:  req.IsEmergency,
	}
	if req.Contribution != nil {
		createReq.Contribution = &purchasedomain.ContributionFields{
			UserID:             strings.TrimSpace(req.Contribution.UserID),
			ContributionAmount: req.Contribution.ContributionAmount,
			MeterReading:       req.Contribution.MeterReading,
			TokensConsumed:     req.Contribution.TokensConsumed,
		}
	}

	resp, err := s.purchaseSvc.Create(c.Request.Context(), createReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetPurchase(c *gin.Context) {
	resp, err := s.purchaseSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPurchases(c *gin.Context) {
	var query struct {
		UserID string `form:"user_id"`
		From   string `form:"from"`
		To     string `form:"to"`
		Limit  string `form:"limit"`
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

	resp, err := s.purchaseSvc.List(c.Request.Context(), purchasedomain.ListRequest{
		UserID: strings.TrimSpace(query.UserID),
		From:   from,
		To:     to,
		Limit:  limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeletePurchase(c *gin.Context) {
	if err := s.purchaseSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RecordContribution(c *gin.Context) {
	var req contributionFields
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.purchaseSvc.RecordContribution(c.Request.Context(), contributionRequest(c.Param("id"), req))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateContribution(c *gin.Context) {
	var req contributionFields
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.purchaseSvc.UpdateContribution(c.Request.Context(), contributionRequest(c.Param("id"), req))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func contributionRequest(purchaseID string, req contributionFields) purchasedomain.ContributionRequest {
	return purchasedomain.ContributionRequest{
		PurchaseID: strings.TrimSpace(purchaseID),
		ContributionFields: purchasedomain.ContributionFields{
			UserID:             strings.TrimSpace(req.UserID),
			ContributionAmount: req.ContributionAmount,
			MeterReading:       req.MeterReading,
			TokensConsumed:     req.TokensConsumed,
		},
	}
}
