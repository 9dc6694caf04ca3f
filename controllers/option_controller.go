package controllers

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"option-ledger/interfaces"
	"option-ledger/models"
	"option-ledger/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ProgramName and ProgramVersion identify the ledger program
const (
	ProgramName    = "option-ledger"
	ProgramVersion = "0.1.0"
)

// OptionController handles option lifecycle endpoints
type OptionController struct {
	optionService *services.OptionService
	clock         interfaces.Clock
	priceDecimals int32
}

// NewOptionController creates a new option controller.
// priceDecimals is the number of decimals of the smallest price unit.
func NewOptionController(optionService *services.OptionService, clock interfaces.Clock, priceDecimals int32) *OptionController {
	if clock == nil {
		clock = interfaces.SystemClock{}
	}
	return &OptionController{
		optionService: optionService,
		clock:         clock,
		priceDecimals: priceDecimals,
	}
}

// InitializeOptionRequest is the body of POST /api/v1/options
type InitializeOptionRequest struct {
	StrikePrice     uint64 `json:"strike_price"`
	OptionType      string `json:"option_type" binding:"required"`
	Expiration      int64  `json:"expiration" binding:"required"`
	UnderlyingAsset string `json:"underlying_asset" binding:"required"`
	Quantity        uint64 `json:"quantity"`
	PremiumPrice    uint64 `json:"premium_price"`
}

// OptionView is an option record with human-readable amounts and times
type OptionView struct {
	*interfaces.OptionRecord
	StrikePriceDisplay  decimal.Decimal `json:"strike_price_display"`
	PremiumPriceDisplay decimal.Decimal `json:"premium_price_display"`
	NotionalDisplay     decimal.Decimal `json:"notional_display"`
	CreatedAt           time.Time       `json:"created_at"`
	ExpiresAt           time.Time       `json:"expires_at"`
	PastExpiration      bool            `json:"past_expiration"`
}

func (oc *OptionController) view(record *interfaces.OptionRecord) *OptionView {
	strike := oc.amount(record.StrikePrice)
	return &OptionView{
		OptionRecord:        record,
		StrikePriceDisplay:  strike,
		PremiumPriceDisplay: oc.amount(record.PremiumPrice),
		NotionalDisplay:     strike.Mul(decimal.NewFromBigInt(new(big.Int).SetUint64(record.Quantity), 0)),
		CreatedAt:           time.Unix(int64(record.CreationTimestamp), 0).UTC(),
		ExpiresAt:           time.Unix(int64(record.ExpirationTimestamp), 0).UTC(),
		PastExpiration:      record.IsExpiredAt(oc.clock.Now().Unix()),
	}
}

func (oc *OptionController) amount(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -oc.priceDecimals)
}

// HandleInitializeOption writes a new option owned by the caller
// POST /api/v1/options
func (oc *OptionController) HandleInitializeOption(c *gin.Context) {
	caller, ok := CallerFrom(c)
	if !ok {
		abortUnauthorized(c, "caller identity required")
		return
	}

	var req InitializeOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	optionType, err := interfaces.ParseOptionType(req.OptionType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}
	asset, err := interfaces.ParsePublicKey(req.UnderlyingAsset)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, err := oc.optionService.InitializeOption(c.Request.Context(), caller, services.InitializeParams{
		StrikePrice:     req.StrikePrice,
		OptionType:      optionType,
		Expiration:      req.Expiration,
		UnderlyingAsset: asset,
		Quantity:        req.Quantity,
		PremiumPrice:    req.PremiumPrice,
	})
	if err != nil {
		respondError(c, err, "Failed to initialize option")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Option contract initialized",
		"signature": result.Signature,
		"option":    oc.view(result.Record),
	})
}

// HandleExerciseOption exercises an option
// POST /api/v1/options/:key/exercise
func (oc *OptionController) HandleExerciseOption(c *gin.Context) {
	oc.handleTransition(c, oc.optionService.ExerciseOption, "Option exercised", "Failed to exercise option")
}

// HandleExpireOption expires an option past its expiration
// POST /api/v1/options/:key/expire
func (oc *OptionController) HandleExpireOption(c *gin.Context) {
	oc.handleTransition(c, oc.optionService.ExpireOption, "Option expired", "Failed to expire option")
}

// HandleCloseOption closes and destroys an open option
// DELETE /api/v1/options/:key
func (oc *OptionController) HandleCloseOption(c *gin.Context) {
	oc.handleTransition(c, oc.optionService.CloseOption, "Option closed", "Failed to close option")
}

func (oc *OptionController) handleTransition(
	c *gin.Context,
	op func(ctx context.Context, caller, key interfaces.PublicKey) (*services.TransactionResult, error),
	message, failure string,
) {
	caller, ok := CallerFrom(c)
	if !ok {
		abortUnauthorized(c, "caller identity required")
		return
	}

	key, ok := parseKeyParam(c)
	if !ok {
		return
	}

	result, err := op(c.Request.Context(), caller, key)
	if err != nil {
		respondError(c, err, failure)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   message,
		"signature": result.Signature,
		"option":    oc.view(result.Record),
	})
}

// HandleGetOption retrieves one option
// GET /api/v1/options/:key
func (oc *OptionController) HandleGetOption(c *gin.Context) {
	key, ok := parseKeyParam(c)
	if !ok {
		return
	}

	record, err := oc.optionService.GetOption(c.Request.Context(), key)
	if err != nil {
		respondError(c, err, "Failed to get option")
		return
	}

	c.JSON(http.StatusOK, oc.view(record))
}

// HandleListOptions lists options
// GET /api/v1/options?owner=<key>&status=active
func (oc *OptionController) HandleListOptions(c *gin.Context) {
	var filter interfaces.OptionFilter

	if owner := c.Query("owner"); owner != "" {
		key, err := interfaces.ParsePublicKey(owner)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid owner",
				"details": err.Error(),
			})
			return
		}
		filter.Owner = &key
	}
	if status := c.Query("status"); status != "" {
		parsed, err := interfaces.ParseOptionStatus(status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid status",
				"details": err.Error(),
			})
			return
		}
		filter.Status = &parsed
	}

	records, err := oc.optionService.ListOptions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Failed to list options")
		return
	}

	views := make([]*OptionView, len(records))
	for i, record := range records {
		views[i] = oc.view(record)
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(views),
		"options": views,
	})
}

// HandleListEvents returns the transaction journal of one option
// GET /api/v1/options/:key/events
func (oc *OptionController) HandleListEvents(c *gin.Context) {
	key, ok := parseKeyParam(c)
	if !ok {
		return
	}

	events, err := oc.optionService.ListEvents(c.Request.Context(), key)
	if err != nil {
		respondError(c, err, "Failed to list events")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// HandleProgramInfo describes the program and its error codes
// GET /api/v1/info
func (oc *OptionController) HandleProgramInfo(c *gin.Context) {
	codes := make([]gin.H, len(services.AllLifecycleErrors))
	for i, e := range services.AllLifecycleErrors {
		codes[i] = gin.H{
			"code":    e.Number,
			"name":    e.Code,
			"kind":    e.Kind,
			"message": e.Message,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"program":        ProgramName,
		"version":        ProgramVersion,
		"account_size":   models.OptionAccountSize,
		"price_decimals": oc.priceDecimals,
		"errors":         codes,
	})
}

func parseKeyParam(c *gin.Context) (interfaces.PublicKey, bool) {
	key, err := interfaces.ParsePublicKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid option key",
			"details": err.Error(),
		})
		return interfaces.PublicKey{}, false
	}
	return key, true
}

// respondError maps lifecycle error kinds to HTTP statuses
func respondError(c *gin.Context, err error, failure string) {
	var le *services.LifecycleError
	if !errors.As(err, &le) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   failure,
			"details": err.Error(),
		})
		return
	}

	status := http.StatusInternalServerError
	switch le.Kind {
	case services.KindValidation:
		status = http.StatusBadRequest
	case services.KindState:
		status = http.StatusConflict
	case services.KindAuthorization:
		status = http.StatusForbidden
	case services.KindNotFound:
		status = http.StatusNotFound
	}

	c.JSON(status, gin.H{
		"error":   le.Code,
		"code":    le.Number,
		"details": le.Message,
	})
}
