package main

import (
	"encoding/hex"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/ledger"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/proof"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/publisher"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/query"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/submitter"
)

// PublisherAPI exposes the publishing pipeline over HTTP
type PublisherAPI struct {
	publisher   *publisher.Publisher
	querySvc    *query.Service
	healthCheck func() error
	contract    string
	networkURL  string
}

// PublishBody is the intake payload from the web layer. Score arrives as the
// ML service's probability in [0,1] and is scaled to the ledger's integer
// percentage at this boundary.
type PublishBody struct {
	ProjectID           string             `json:"project_id" binding:"required"`
	Score               float64            `json:"score" binding:"min=0,max=1"`
	FeatureExplanations map[string]float64 `json:"feature_explanations"`
	Metadata            map[string]string  `json:"metadata"`
}

// Publish submits a prediction for on-chain storage and returns immediately
// with the pending transaction handle
func (a *PublisherAPI) Publish(c *gin.Context) {
	var body PublishBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := &publisher.PublishRequest{
		ProjectID:           body.ProjectID,
		Score:               uint8(math.Round(body.Score * 100)),
		FeatureExplanations: body.FeatureExplanations,
		Metadata:            body.Metadata,
	}

	handle, err := a.publisher.Publish(c.Request.Context(), req)
	if err != nil {
		status, detail := classifyPublishError(err)
		log.Errorf("Publish failed for project %s: %v", body.ProjectID, err)
		c.JSON(status, gin.H{"error": detail})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"tx_hash":   handle.TxHash,
		"ledger_id": handle.LedgerID.Hex(),
		"status":    string(handle.Status),
	})
}

// TransactionStatus returns the current lifecycle state of a submitted
// transaction
func (a *PublisherAPI) TransactionStatus(c *gin.Context) {
	txHash := c.Param("hash")

	handle, err := a.publisher.Status(c.Request.Context(), txHash)
	if err != nil {
		if errors.Is(err, publisher.ErrUnknownTransaction) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown transaction hash"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tx_hash":       handle.TxHash,
		"status":        string(handle.Status),
		"confirmations": handle.Confirmations,
		"ledger_id":     handle.LedgerID.Hex(),
		"submitted_at":  handle.SubmittedAt.Format(time.RFC3339),
	})
}

// Prediction looks up the stored record for a project
func (a *PublisherAPI) Prediction(c *gin.Context) {
	id, err := proof.DeriveID(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := a.querySvc.Lookup(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no prediction recorded for this project"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ledger_id": "0x" + hex.EncodeToString(record.ID[:]),
		"submitter": record.Submitter.Hex(),
		"score":     record.Score,
		"timestamp": record.Timestamp,
		"proof":     "0x" + hex.EncodeToString(record.Proof),
	})
}

// VerifyPrediction compares a caller-supplied proof against the stored one
func (a *PublisherAPI) VerifyPrediction(c *gin.Context) {
	id, err := proof.DeriveID(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	proofHex := strings.TrimPrefix(c.Query("proof"), "0x")
	expected, err := hex.DecodeString(proofHex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proof must be hex-encoded"})
		return
	}

	verified, err := a.querySvc.Verify(c.Request.Context(), id, expected)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified": verified})
}

// Health reports chain connectivity and ledger reachability
func (a *PublisherAPI) Health(c *gin.Context) {
	connected := true
	if err := a.healthCheck(); err != nil {
		log.Warnf("Health check failed to reach the ledger network: %v", err)
		connected = false
	}

	status := "healthy"
	code := http.StatusOK
	if !connected {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":               status,
		"blockchain_connected": connected,
		"contract_address":     a.contract,
		"network_url":          a.networkURL,
	})
}

// classifyPublishError maps the pipeline's error taxonomy to HTTP statuses.
// Fatal input errors are the caller's to fix; resource and network failures
// point at the service or the chain.
func classifyPublishError(err error) (int, string) {
	var validationErr *ledger.ValidationError
	var inputErr *proof.InvalidInputError
	var fundsErr *submitter.InsufficientFundsError
	var revertErr *submitter.WouldRevertError
	var broadcastErr *submitter.BroadcastFailedError

	switch {
	case errors.As(err, &validationErr), errors.As(err, &inputErr):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &revertErr):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.As(err, &fundsErr):
		return http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &broadcastErr):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
