package handler

import (
	"net/http"

	"talktofolder-go/internal/service"
	"talktofolder-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// FileHandler 结构体定义了单文件相关的处理器。
type FileHandler struct {
	indexService service.IndexService
}

// NewFileHandler 创建一个新的 FileHandler 实例。
func NewFileHandler(indexService service.IndexService) *FileHandler {
	return &FileHandler{indexService: indexService}
}

// IndexFile 对单个文件执行向量索引。
func (h *FileHandler) IndexFile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	fileID := c.Param("id")

	outcome, err := h.indexService.IndexFile(c.Request.Context(), user, fileID)
	if err != nil {
		log.Errorf("[FileHandler] 索引文件 %s 失败: %v", fileID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "索引文件失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": outcome, "message": "success"})
}
