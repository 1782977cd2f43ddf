// Package handler 实现了 HTTP 请求的处理器。
package handler

import (
	"context"
	"errors"
	"net/http"

	"talktofolder-go/internal/model"
	"talktofolder-go/internal/service"
	"talktofolder-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// FolderHandler 结构体定义了文件夹相关的处理器。
type FolderHandler struct {
	folderService service.FolderService
	indexService  service.IndexService
}

// NewFolderHandler 创建一个新的 FolderHandler 实例。
func NewFolderHandler(folderService service.FolderService, indexService service.IndexService) *FolderHandler {
	return &FolderHandler{
		folderService: folderService,
		indexService:  indexService,
	}
}

// currentUser 从 Gin 上下文中取出认证中间件注入的用户。
func currentUser(c *gin.Context) (*model.User, bool) {
	v, exists := c.Get("user")
	if !exists {
		log.Errorf("[Handler] 无法从 Gin 上下文中获取用户信息")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return nil, false
	}
	return v.(*model.User), true
}

type createFolderRequest struct {
	FolderID string `json:"folderId" binding:"required"`
}

// CreateFolder 接入一个 Drive 文件夹并同步其文件列表。
func (h *FolderHandler) CreateFolder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	log.Infof("[FolderHandler] 用户 %s 请求接入文件夹 %s", user.ID, req.FolderID)
	folder, chat, err := h.folderService.AttachFolder(c.Request.Context(), user, req.FolderID)
	if err != nil {
		log.Errorf("[FolderHandler] 接入文件夹失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "接入文件夹失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"folder": folder, "chat": chat}, "message": "success"})
}

// Status 返回文件夹及其文件的索引状态。
func (h *FolderHandler) Status(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	status, err := h.folderService.Status(user.ID, c.Param("id"))
	if err != nil {
		log.Warnf("[FolderHandler] 查询文件夹状态失败: %v", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "文件夹不存在"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": status, "message": "success"})
}

// IndexFolder 以向量策略索引整个文件夹。
func (h *FolderHandler) IndexFolder(c *gin.Context) {
	h.runFolderIndex(c, h.indexService.IndexFolderVectors)
}

// IndexFolderAssistant 以托管助手批量策略索引整个文件夹。
func (h *FolderHandler) IndexFolderAssistant(c *gin.Context) {
	h.runFolderIndex(c, h.indexService.IndexFolderAssistant)
}

func (h *FolderHandler) runFolderIndex(c *gin.Context, run func(ctx context.Context, user *model.User, folderID string) (*service.FolderIndexResult, error)) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	folderID := c.Param("id")

	result, err := run(c.Request.Context(), user, folderID)
	if err != nil {
		if errors.Is(err, service.ErrIndexInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "该文件夹正在索引中"})
			return
		}
		log.Errorf("[FolderHandler] 索引文件夹 %s 失败: %v", folderID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "索引文件夹失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": result, "message": "success"})
}
