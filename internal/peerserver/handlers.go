package peerserver

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inventor7/p2p/internal/api"
	"github.com/inventor7/p2p/internal/apierr"
)

// RegisterRoutes wires PS's six endpoints onto a gin engine.
// Every endpoint but /health and /login requires the bearer token
// AuthManager minted at login.
func RegisterRoutes(r gin.IRouter, s *Server) {
	r.GET("/health", healthHandler(s))
	r.POST("/login", loginHandler(s))

	authed := r.Group("/")
	authed.Use(bearerAuth(s))
	authed.POST("/create", createHandler(s))
	authed.POST("/search", searchHandler(s))
	authed.GET("/download/:filename", downloadHandler(s))
	authed.POST("/logout", logoutHandler(s))
}

// bearerAuth enforces the Authorization: Bearer {token} scheme every
// endpoint but /login and /health requires.
func bearerAuth(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			api.RespondError(c, apierr.New(apierr.KindAuth, "missing or malformed bearer token"))
			c.Abort()
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if err := s.auth.VerifyToken(token); err != nil {
			api.RespondError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func healthHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"peer_id":          s.cfg.PeerID,
			"username":         s.cfg.Username,
			"files_available":  s.files.Count(),
			"logged_in":        s.auth.IsLoggedIn(),
			"shared_directory": s.cfg.SharedDirectory,
			"timestamp":        time.Now().Format(time.RFC3339),
		})
	}
}

type loginRequest struct {
	PeerID   string `json:"peer_id" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			api.RespondError(c, apierr.New(apierr.KindBadRequest, err.Error()))
			return
		}

		token, info, err := s.Login(c.Request.Context(), req.PeerID, req.Username, req.Password)
		if err != nil {
			api.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   "logged in",
			"token":     token,
			"peer_info": info,
		})
	}
}

func createHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			api.RespondError(c, apierr.New(apierr.KindBadRequest, "missing file field"))
			return
		}

		opened, err := fileHeader.Open()
		if err != nil {
			api.RespondError(c, apierr.Wrap(apierr.KindInternal, "could not open uploaded file", err))
			return
		}
		defer opened.Close()

		content, err := io.ReadAll(opened)
		if err != nil {
			api.RespondError(c, apierr.Wrap(apierr.KindInternal, "could not read uploaded file", err))
			return
		}

		if err := s.files.WriteUpload(fileHeader.Filename, content); err != nil {
			api.RespondError(c, err)
			return
		}

		total, err := s.RescanAndRepublish(c.Request.Context())
		if err != nil {
			api.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"filename":    fileHeader.Filename,
			"size":        len(content),
			"total_files": total,
		})
	}
}

type searchRequest struct {
	Query  string `json:"query" binding:"required"`
	PeerID string `json:"peer_id"`
}

func searchHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req searchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			api.RespondError(c, apierr.New(apierr.KindBadRequest, err.Error()))
			return
		}

		session := s.Session()
		if session == nil {
			api.RespondError(c, apierr.New(apierr.KindUnavailable, "not connected to directory; login first"))
			return
		}

		results, err := session.SearchFiles(c.Request.Context(), req.Query, "")
		if err != nil {
			api.RespondError(c, err)
			return
		}

		type projected struct {
			Filename    string `json:"filename"`
			FileSize    int64  `json:"file_size"`
			FileHash    string `json:"file_hash"`
			PeerID      string `json:"peer_id"`
			Username    string `json:"username"`
			Port        int    `json:"port"`
			DownloadURL string `json:"download_url"`
		}

		out := make([]projected, 0, len(results))
		for _, r := range results {
			out = append(out, projected{
				Filename:    r.FileInfo.Filename,
				FileSize:    r.FileInfo.Size,
				FileHash:    r.FileInfo.ContentHash,
				PeerID:      r.PeerInfo.PeerID,
				Username:    r.PeerInfo.Username,
				Port:        r.PeerInfo.Port,
				DownloadURL: fmt.Sprintf("http://%s:%s/download/%s", r.PeerInfo.PeerID, strconv.Itoa(r.PeerInfo.Port), r.FileInfo.Filename),
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"query":         req.Query,
			"results_count": len(out),
			"results":       out,
			"peer_id":       s.cfg.PeerID,
		})
	}
}

func downloadHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		filename := c.Param("filename")
		path, err := s.files.ResolvePath(filename)
		if err != nil {
			api.RespondError(c, err)
			return
		}

		info, err := os.Stat(path)
		if err != nil {
			api.RespondError(c, apierr.New(apierr.KindNotFound, "file not found"))
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
		c.Header("X-Peer-ID", s.cfg.PeerID)
		c.Header("X-Peer-Username", s.cfg.Username)
		c.Header("X-File-Size", strconv.FormatInt(info.Size(), 10))
		c.File(path)
	}
}

func logoutHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Logout(c.Request.Context()); err != nil {
			api.RespondError(c, apierr.Wrap(apierr.KindInternal, "logout encountered an error", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "logged out",
			"peer_id": s.cfg.PeerID,
		})
	}
}
