package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/LucasKiller/DocLens/internal/config"
	"github.com/LucasKiller/DocLens/internal/domain"
	"github.com/LucasKiller/DocLens/internal/services"
	"github.com/LucasKiller/DocLens/internal/storage"
)

type API struct {
	cfg    config.Config
	store  *storage.Store
	files  *storage.FileManager
	auth   *services.AuthService
	users  *services.UsersService
	docs   *services.DocumentsService
	report *services.ReportService
}

func NewAPI(cfg config.Config, store *storage.Store, fm *storage.FileManager, auth *services.AuthService, users *services.UsersService, docs *services.DocumentsService, report *services.ReportService) *API {
	return &API{cfg: cfg, store: store, files: fm, auth: auth, users: users, docs: docs, report: report}
}

func registerRoutes(r *gin.Engine, api *API) {
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", api.handleHealth)

		authGroup := apiGroup.Group("/auth")
		authGroup.POST("/register", api.handleRegister)
		authGroup.POST("/login", api.handleLogin)
		authGroup.GET("/me", AuthRequired(api.auth), api.handleMe)

		usersGroup := apiGroup.Group("/users", AuthRequired(api.auth))
		usersGroup.POST("", RequireAdmin(), api.handleCreateUser)
		usersGroup.GET("", RequireAdmin(), api.handleListUsers)
		usersGroup.GET("/:id", api.handleGetUser)
		usersGroup.PATCH("/:id", api.handleUpdateUser)
		usersGroup.DELETE("/:id", RequireAdmin(), api.handleDeleteUser)

		docsGroup := apiGroup.Group("/documents", AuthRequired(api.auth))
		docsGroup.POST("", api.handleUploadDocument)
		docsGroup.GET("", api.handleListDocuments)
		docsGroup.GET("/:id", api.handleGetDocument)
		docsGroup.GET("/:id/status", api.handleDocumentStatus)
		docsGroup.POST("/:id/ask", api.handleAskDocument)
		docsGroup.GET("/:id/download", api.handleDownloadDocument)
		docsGroup.GET("/:id/report", api.handleDocumentReport)
		docsGroup.POST("/:id/retry", api.handleRetryDocument)
		docsGroup.DELETE("/:id", api.handleDeleteDocument)
	}
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Auth --------------------------------------------------------------------

func (a *API) handleRegister(c *gin.Context) {
	var payload struct {
		Email    string `json:"email" binding:"required,email"`
		Name     string `json:"name" binding:"required,min=3"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	token, user, err := a.auth.Register(payload.Email, payload.Name, payload.Password)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"access_token": token, "user": user})
}

func (a *API) handleLogin(c *gin.Context) {
	var payload struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	token, user, err := a.auth.Login(payload.Email, payload.Password)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "user": user})
}

func (a *API) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, identityFrom(c))
}

// Users -------------------------------------------------------------------

func (a *API) handleCreateUser(c *gin.Context) {
	var payload struct {
		Email    string      `json:"email" binding:"required,email"`
		Name     string      `json:"name" binding:"required,min=3"`
		Password string      `json:"password" binding:"required,min=6"`
		Role     domain.Role `json:"role"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	user, err := a.users.Create(payload.Email, payload.Name, payload.Password, payload.Role)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (a *API) handleListUsers(c *gin.Context) {
	c.JSON(http.StatusOK, a.users.List())
}

func (a *API) handleGetUser(c *gin.Context) {
	user, err := a.users.Get(c.Param("id"), identityFrom(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (a *API) handleUpdateUser(c *gin.Context) {
	var payload struct {
		Email    *string      `json:"email"`
		Name     *string      `json:"name"`
		Password *string      `json:"password"`
		Role     *domain.Role `json:"role"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	user, err := a.users.Update(c.Param("id"), services.UserUpdate{
		Email:    payload.Email,
		Name:     payload.Name,
		Password: payload.Password,
		Role:     payload.Role,
	}, identityFrom(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (a *API) handleDeleteUser(c *gin.Context) {
	if err := a.users.Delete(c.Param("id")); err != nil {
		respondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Documents ---------------------------------------------------------------

func (a *API) handleUploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "missing document file")
		return
	}

	upload, err := fileHeader.Open()
	if err != nil {
		logrus.WithError(err).Error("open uploaded file")
		respondMessage(c, http.StatusInternalServerError, "unable to read uploaded file")
		return
	}
	defer upload.Close()

	doc, err := a.docs.CreateFromUpload(upload, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), identityFrom(c))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidUpload) {
			respondMessage(c, http.StatusBadRequest, err.Error())
			return
		}
		logrus.WithError(err).Error("store uploaded document")
		respondMessage(c, http.StatusInternalServerError, "unable to store document")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"document": doc})
}

func (a *API) handleListDocuments(c *gin.Context) {
	docs := a.docs.List(identityFrom(c), c.Query("userId"))
	c.JSON(http.StatusOK, docs)
}

func (a *API) handleGetDocument(c *gin.Context) {
	doc, res, err := a.docs.Detail(c.Param("id"), identityFrom(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc, "ocr": res})
}

func (a *API) handleDocumentStatus(c *gin.Context) {
	status, err := a.docs.Status(c.Param("id"), identityFrom(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (a *API) handleAskDocument(c *gin.Context) {
	var payload struct {
		Question string `json:"question" binding:"required,min=3"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	inter, err := a.docs.Ask(c.Request.Context(), c.Param("id"), identityFrom(c), strings.TrimSpace(payload.Question))
	if err != nil {
		if isDomainError(err) {
			respondDomainError(c, err)
			return
		}
		logrus.WithError(err).Error("ask failed")
		respondMessage(c, http.StatusBadGateway, "answering failed")
		return
	}

	c.JSON(http.StatusCreated, inter)
}

func (a *API) handleDownloadDocument(c *gin.Context) {
	docID := c.Param("id")
	content, err := a.docs.Transcript(docID, identityFrom(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "document-"+docID+".txt"))
	c.String(http.StatusOK, content)
}

func (a *API) handleDocumentReport(c *gin.Context) {
	docID := c.Param("id")
	doc, res, err := a.docs.Detail(docID, identityFrom(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	outPath := a.files.ReportPath(docID)
	if err := a.report.Generate(doc, res, a.store.ListInteractions(docID), outPath); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.FileAttachment(outPath, "document-"+docID+".pdf")
}

func (a *API) handleRetryDocument(c *gin.Context) {
	if err := a.docs.Retry(c.Param("id"), identityFrom(c)); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

func (a *API) handleDeleteDocument(c *gin.Context) {
	if err := a.docs.Delete(c.Param("id"), identityFrom(c)); err != nil {
		respondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Error translation -------------------------------------------------------

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrInvalidCredentials)
}

func respondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondMessage(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		respondMessage(c, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrConflict):
		respondMessage(c, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		respondMessage(c, http.StatusUnauthorized, "invalid credentials")
	default:
		respondError(c, http.StatusInternalServerError, err)
	}
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
