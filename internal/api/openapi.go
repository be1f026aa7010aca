package api

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed openapi.json
var openAPIDocument []byte

func (h *Handler) openAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", openAPIDocument)
}

func (h *Handler) docsRedirect(c *gin.Context) {
	c.Redirect(http.StatusTemporaryRedirect, "/openapi.json")
}
