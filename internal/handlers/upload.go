package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gonasi/gonasi-sub007/internal/services"
)

type UploadHandler struct {
	uploads *services.UploadService
}

func NewUploadHandler(uploads *services.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

type PrepareUploadRequest struct {
	Name     string `json:"name" binding:"required,max=255" example:"slides.pdf"`
	Size     int64  `json:"size" binding:"required,gt=0,lte=1099511627776" example:"1048576"`
	MimeType string `json:"mime_type" binding:"max=100" example:"application/pdf"`
}

type ConfirmUploadRequest struct {
	Token string `json:"token" binding:"required"`
}

// PrepareUpload godoc
// @Summary      Reserve storage for a file upload
// @Description  Returns ok=false with the shortfall when the library lacks room for the file plus a 10% buffer
// @Tags         files
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Organization ID"
// @Param        request body PrepareUploadRequest true "File metadata"
// @Success      200 {object} services.PrepareResult
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/organizations/{id}/files/prepare [post]
func (h *UploadHandler) PrepareUpload(c *gin.Context) {
	orgID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req PrepareUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.uploads.PrepareFileUpload(orgID, currentUser(c), req.Name, req.Size, req.MimeType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ConfirmUpload godoc
// @Summary      Confirm a completed upload
// @Tags         files
// @Accept       json
// @Produce      json
// @Param        request body ConfirmUploadRequest true "Upload token"
// @Success      200 {object} models.FileObject
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/files/confirm [post]
func (h *UploadHandler) ConfirmUpload(c *gin.Context) {
	var req ConfirmUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	file, err := h.uploads.ConfirmFileUpload(req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// ListFiles godoc
// @Summary      List library files
// @Tags         files
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Organization ID"
// @Success      200 {array} models.FileObject
// @Router       /api/v1/organizations/{id}/files [get]
func (h *UploadHandler) ListFiles(c *gin.Context) {
	orgID, ok := paramID(c, "id")
	if !ok {
		return
	}
	files, err := h.uploads.ListFiles(orgID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// GetStorage godoc
// @Summary      Storage usage
// @Tags         files
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Organization ID"
// @Success      200 {object} services.StorageUsage
// @Router       /api/v1/organizations/{id}/storage [get]
func (h *UploadHandler) GetStorage(c *gin.Context) {
	orgID, ok := paramID(c, "id")
	if !ok {
		return
	}
	usage, err := h.uploads.StorageUsage(orgID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}
