package api

import (
	"io/ioutil"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"tangl.es/code/media"
)

// Handler serves the media routes.
type Handler struct {
	deps media.Dependencies
}

// UploadResponse is the body of every /upload-image response. Image is
// present iff Success.
type UploadResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Image   *media.UploadedImage `json:"image,omitempty"`
}

// MessageResponse is the body of deletion and error responses.
type MessageResponse struct {
	Message string `json:"message"`
}

// isBodyTooLarge reports whether err came from the MaxBytesReader. The
// multipart reader returns read errors unchanged or wrapped with %w, so
// errors.As finds it.
func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// UploadImage handles POST /api/upload-image with a multipart "file" field.
func (h *Handler) UploadImage(c *gin.Context) {
	limit := h.deps.Config.MaxUploadSize + multipartSlack
	if c.Request.ContentLength > limit {
		c.JSON(http.StatusBadRequest, UploadResponse{Message: "too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	fh, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			c.JSON(http.StatusBadRequest, UploadResponse{Message: "too large"})
			return
		}
		c.JSON(http.StatusBadRequest, UploadResponse{Message: "no file uploaded"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, UploadResponse{Message: "could not read upload"})
		return
	}

	img, err := media.Ingest(c.Request.Context(), h.deps, media.IncomingImage{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Data:        f,
	})
	if err != nil {
		status, msg := describe(err)
		c.JSON(status, UploadResponse{Message: msg})
		return
	}
	c.JSON(http.StatusOK, UploadResponse{
		Success: true,
		Message: "Image uploaded successfully",
		Image:   &img,
	})
}

// ListImages handles GET /api/uploaded-images.
func (h *Handler) ListImages(c *gin.Context) {
	imgs, err := media.List(c.Request.Context(), h.deps)
	if err != nil {
		status, msg := describe(err)
		c.JSON(status, MessageResponse{Message: msg})
		return
	}
	c.JSON(http.StatusOK, imgs)
}

// DeleteImage handles DELETE /api/uploaded-images/:id.
func (h *Handler) DeleteImage(c *gin.Context) {
	err := media.Delete(c.Request.Context(), h.deps, c.Param("id"))
	if err != nil {
		status, msg := describe(err)
		c.JSON(status, MessageResponse{Message: msg})
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Image deleted successfully"})
}

// ServeImage handles GET and HEAD /<prefix>/:key by reading the blob
// straight from the Storer. Keys are validated here even though generated
// keys never contain separators.
func (h *Handler) ServeImage(c *gin.Context) {
	key := c.Param("key")
	if err := media.ValidateKey(key); err != nil {
		c.JSON(http.StatusBadRequest, MessageResponse{Message: "invalid key"})
		return
	}
	rc, err := h.deps.Storer.Download(c.Request.Context(), key)
	if err != nil {
		status, msg := describe(err)
		c.JSON(status, MessageResponse{Message: msg})
		return
	}
	defer rc.Close()
	data, err := ioutil.ReadAll(rc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, MessageResponse{Message: "error reading image"})
		return
	}
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, mimetype.Detect(data).String(), data)
}

// describe maps an error from the media package to a status code and a
// message fit for the client.
func describe(err error) (int, string) {
	var ve media.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Reason
	case errors.Is(err, media.ErrNotFound):
		return http.StatusNotFound, "Image not found"
	case errors.Is(err, media.ErrInvalidKey):
		return http.StatusBadRequest, "invalid key"
	default:
		return http.StatusInternalServerError, "storage error, please try again later"
	}
}
