package sse

import (
	"github.com/gin-gonic/gin"
)

func InitSSERouter(rg *gin.RouterGroup, sseHandler *ServerSentEventHandler, path string) {
	rg.GET(path, sseHandler.Connect)
}
