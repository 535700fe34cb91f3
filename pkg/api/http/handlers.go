package http

import (
	"net/http"
	"time"

	"github.com/aescanero/periphery/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleHealth answers the liveness probe
func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{"api": "ok"}
	if s.workers != nil {
		if s.workers.IsHealthy() {
			checks["workers"] = "ok"
		} else {
			checks["workers"] = "degraded"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleRegister handles node registration with the root
func (s *Server) handleRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	if err := s.cluster.Register(c.Request.Context(), req.Address); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, AckResponse{Status: "registered"})
}

// handleGetCluster returns the roster and assignment
func (s *Server) handleGetCluster(c *gin.Context) {
	c.JSON(http.StatusOK, s.cluster.Info(c.Request.Context()))
}

// handleAssignShard installs the shard artifact carried in the body
func (s *Server) handleAssignShard(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		s.badRequest(c, err)
		return
	}

	if err := s.cluster.AssignShard(c.Request.Context(), data); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, AckResponse{Status: "assigned"})
}

// handleGetShard lists the declared inputs and outputs of the own shard
func (s *Server) handleGetShard(c *gin.Context) {
	inputs, outputs, ok := s.tasks.Shard()
	c.JSON(http.StatusOK, ShardResponse{
		Assigned: ok,
		Inputs:   inputs,
		Outputs:  outputs,
	})
}

// handleAssignChildren records a child of the own shard
func (s *Server) handleAssignChildren(c *gin.Context) {
	var req AssignChildrenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	if err := s.cluster.AssignChildren(c.Request.Context(), req.Child, req.Names); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, AckResponse{Status: "assigned"})
}

// handleListPending lists requests still waiting for inputs
func (s *Server) handleListPending(c *gin.Context) {
	pending := s.tasks.Pending()
	c.JSON(http.StatusOK, gin.H{
		"requests": pending,
		"total":    len(pending),
	})
}

// handleRelease drops every trace of a request on this node
func (s *Server) handleRelease(c *gin.Context) {
	if err := s.tasks.Release(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, AckResponse{Status: "released"})
}

// handleListFinals lists requests with stored final outputs (root only)
func (s *Server) handleListFinals(c *gin.Context) {
	ids, err := s.tasks.Finals(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": ids,
		"total":    len(ids),
	})
}

// handleSubmitPartial merges partial inputs into a request
func (s *Server) handleSubmitPartial(c *gin.Context) {
	var req TensorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	if err := s.cluster.SubmitPartial(c.Request.Context(), c.Param("id"), req.Tensors); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, AckResponse{Status: "accepted"})
}

// handleGetOutput returns the local outputs of a request
func (s *Server) handleGetOutput(c *gin.Context) {
	res, err := s.cluster.GetOutput(c.Request.Context(), c.Param("id"))
	s.result(c, res, err)
}

// handleDeliverFinal stores terminal outputs on the root
func (s *Server) handleDeliverFinal(c *gin.Context) {
	var req TensorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	if err := s.cluster.DeliverFinal(c.Request.Context(), c.Param("id"), req.Tensors); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, AckResponse{Status: "delivered"})
}

// handleGetFinal returns the final outputs of a request
func (s *Server) handleGetFinal(c *gin.Context) {
	res, err := s.cluster.GetFinal(c.Request.Context(), c.Param("id"))
	s.result(c, res, err)
}

// result writes a query answer: 200 when complete, 202 while pending
func (s *Server) result(c *gin.Context, res *domain.Result, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	if res.Status == domain.StatusPending {
		c.JSON(http.StatusAccepted, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.logger.Debug("invalid request", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    CodeInvalidRequest,
			Message: err.Error(),
		},
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("infer_id", c.Param("id")),
			zap.Error(err))
	}
	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	})
}
