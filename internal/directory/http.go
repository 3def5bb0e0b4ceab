package directory

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inventor7/p2p/internal/api"
)

// RegisterRoutes wires the six directory RPC operations onto a gin
// engine as POST /rpc/{Method} JSON endpoints: a fixed, typed method
// table rather than a general REST resource tree, keeping the control
// plane distinct from the peer server's bulk-data HTTP surface.
func RegisterRoutes(r gin.IRouter, svc *Service) {
	rpc := r.Group("/rpc")
	rpc.POST("/Login", loginHandler(svc))
	rpc.POST("/Logout", logoutHandler(svc))
	rpc.POST("/Index", indexHandler(svc))
	rpc.POST("/Search", searchHandler(svc))
	rpc.POST("/GetPeerInfo", peerInfoHandler(svc))
	rpc.POST("/Heartbeat", heartbeatHandler(svc))
}

func loginHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp, err := svc.Login(c.Request.Context(), req)
		if err != nil {
			api.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func logoutHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LogoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp, err := svc.Logout(c.Request.Context(), req)
		if err != nil {
			api.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func indexHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IndexRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp, err := svc.Index(c.Request.Context(), req)
		if err != nil {
			api.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func searchHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp, err := svc.Search(c.Request.Context(), req)
		if err != nil {
			api.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func peerInfoHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PeerInfoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp, err := svc.GetPeerInfo(c.Request.Context(), req)
		if err != nil {
			api.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func heartbeatHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req HeartbeatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp, err := svc.Heartbeat(c.Request.Context(), req)
		if err != nil {
			api.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
