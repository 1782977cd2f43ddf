package handler

import (
	"net/http"
	"strconv"

	"talktofolder-go/internal/model"
	"talktofolder-go/internal/service"
	"talktofolder-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ChatHandler 结构体定义了聊天相关的处理器。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type chatRequest struct {
	ChatID  string `json:"chatId" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// Chat 处理向量检索路径的聊天请求。
func (h *ChatHandler) Chat(c *gin.Context) {
	h.runChat(c, false)
}

// ChatAssistant 处理助手优先路径的聊天请求。
func (h *ChatHandler) ChatAssistant(c *gin.Context) {
	h.runChat(c, true)
}

func (h *ChatHandler) runChat(c *gin.Context, assistantFirst bool) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	var result *service.ChatResult
	var err error
	if assistantFirst {
		result, err = h.chatService.ChatWithAssistantFirst(c.Request.Context(), user.ID, req.ChatID, req.Message)
	} else {
		result, err = h.chatService.ChatVectorOnly(c.Request.Context(), user.ID, req.ChatID, req.Message)
	}
	if err != nil {
		log.Errorf("[ChatHandler] 聊天请求失败: %v", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}

	// 兜底回复也是 200：会话层面永远是软失败
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": result, "message": "success"})
}

// messageView 是消息的对外表示，引用以解码后的形式返回。
type messageView struct {
	ID        string           `json:"id"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Citations []model.Citation `json:"citations,omitempty"`
	CreatedAt string           `json:"createdAt"`
}

// Messages 返回会话的全部历史消息。
func (h *ChatHandler) Messages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	messages, err := h.chatService.Messages(user.ID, c.Param("id"))
	if err != nil {
		log.Warnf("[ChatHandler] 查询会话消息失败: %v", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}

	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, messageView{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Citations: m.CitationList(),
			CreatedAt: m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": views, "message": "success"})
}

// Recent 返回用户最近活跃的会话列表。
func (h *ChatHandler) Recent(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	chats, err := h.chatService.RecentChats(user.ID, limit)
	if err != nil {
		log.Errorf("[ChatHandler] 查询最近会话失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询最近会话失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": chats, "message": "success"})
}

// Delete 删除会话并重置其文件夹的索引状态。
func (h *ChatHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.chatService.DeleteChat(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		log.Errorf("[ChatHandler] 删除会话失败: %v", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": nil, "message": "success"})
}
